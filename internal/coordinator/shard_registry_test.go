package coordinator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/edgegraph/graphdb/internal/planner"
	"github.com/edgegraph/graphdb/internal/types"
)

// TestNewShardRegistry tests creation of shard registry
func TestNewShardRegistry(t *testing.T) {
	tests := []struct {
		name      string
		numShards int
	}{
		{
			name:      "create with 1 shard",
			numShards: 1,
		},
		{
			name:      "create with 4 shards",
			numShards: 4,
		},
		{
			name:      "create with 100 shards",
			numShards: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewShardRegistry(tt.numShards)

			if registry == nil {
				t.Fatal("expected registry instance, got nil")
			}
			if registry.NumShards() != tt.numShards {
				t.Errorf("expected %d shards, got %d", tt.numShards, registry.NumShards())
			}
			if registry.GetAllAssignments() == nil {
				t.Error("expected assignments to be initialized")
			}
			if len(registry.GetAllAssignments()) != 0 {
				t.Errorf("expected 0 assignments initially, got %d", len(registry.GetAllAssignments()))
			}
		})
	}
}

// TestShardAssignment tests assigning shards to nodes
func TestShardAssignment(t *testing.T) {
	t.Run("assign shard to node", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.AssignShard(0, "shard-node-1", true); err != nil {
			t.Fatalf("failed to assign shard: %v", err)
		}

		assignment := registry.GetAssignment(0)
		if assignment == nil {
			t.Fatal("expected assignment, got nil")
		}
		if assignment.ShardID != 0 {
			t.Errorf("expected shard ID 0, got %d", assignment.ShardID)
		}
		if assignment.NodeID != "shard-node-1" {
			t.Errorf("expected node ID 'shard-node-1', got %s", assignment.NodeID)
		}
		if !assignment.IsPrimary {
			t.Error("expected primary assignment")
		}
	})

	t.Run("reassign shard to different node", func(t *testing.T) {
		registry := NewShardRegistry(4)
		registry.AssignShard(0, "shard-node-1", true)

		if err := registry.AssignShard(0, "shard-node-2", true); err != nil {
			t.Fatalf("failed to reassign shard: %v", err)
		}

		assignment := registry.GetAssignment(0)
		if assignment.NodeID != "shard-node-2" {
			t.Errorf("expected node ID 'shard-node-2' after reassignment, got %s", assignment.NodeID)
		}
	})

	t.Run("assign invalid shard ID", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.AssignShard(5, "shard-node-1", true); err == nil {
			t.Error("expected error for invalid shard ID, got nil")
		}
		if err := registry.AssignShard(-1, "shard-node-1", true); err == nil {
			t.Error("expected error for negative shard ID, got nil")
		}
	})

	t.Run("assign with empty node ID", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.AssignShard(0, "", true); err == nil {
			t.Error("expected error for empty node ID, got nil")
		}
	})
}

// TestShardForSubject tests subject-to-shard mapping, matching the
// internal/planner.ShardForSubject function it delegates to.
func TestShardForSubject(t *testing.T) {
	tests := []struct {
		name      string
		numShards int
		subject   types.EntityId
	}{
		{
			name:      "single shard owns every subject",
			numShards: 1,
			subject:   "https://ex.test/entity/1",
		},
		{
			name:      "ordinary subject with 4 shards",
			numShards: 4,
			subject:   "https://ex.test/entity/42",
		},
		{
			name:      "empty subject",
			numShards: 4,
			subject:   "",
		},
		{
			name:      "long subject IRI",
			numShards: 8,
			subject:   "https://ex.test/entity/this-is-a-very-long-subject-id-that-should-still-hash-correctly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewShardRegistry(tt.numShards)

			shardID := registry.ShardForSubject(tt.subject)
			if shardID < 0 || int(shardID) >= tt.numShards {
				t.Errorf("shard ID %d out of range [0, %d)", shardID, tt.numShards)
			}

			for i := 0; i < 10; i++ {
				if got := registry.ShardForSubject(tt.subject); got != shardID {
					t.Errorf("inconsistent shard mapping: got %d, expected %d", got, shardID)
				}
			}

			if got := planner.ShardForSubject(tt.subject, tt.numShards); got != shardID {
				t.Errorf("registry and planner disagree on shard for %q: registry=%d planner=%d", tt.subject, shardID, got)
			}
		})
	}

	t.Run("subject distribution", func(t *testing.T) {
		registry := NewShardRegistry(4)

		shardCounts := make(map[planner.ShardID]int)
		numSubjects := 1000
		for i := 0; i < numSubjects; i++ {
			subject := types.EntityId(fmt.Sprintf("https://ex.test/entity/%d", i))
			shardCounts[registry.ShardForSubject(subject)]++
		}

		for shardID := planner.ShardID(0); shardID < 4; shardID++ {
			count := shardCounts[shardID]
			if count == 0 {
				t.Errorf("shard %d got no subjects", shardID)
			}
			if count < numSubjects/8 || count > numSubjects*3/8 {
				t.Errorf("shard %d has poor distribution: %d subjects (expected ~%d)", shardID, count, numSubjects/4)
			}
		}
	})
}

// TestGetNodeForSubject tests finding the node that owns a subject's shard.
func TestGetNodeForSubject(t *testing.T) {
	t.Run("get node for assigned shard", func(t *testing.T) {
		registry := NewShardRegistry(4)
		registry.AssignShard(0, "shard-node-1", true)
		registry.AssignShard(1, "shard-node-2", true)
		registry.AssignShard(2, "shard-node-1", true)
		registry.AssignShard(3, "shard-node-2", true)

		var subjectForShard0 types.EntityId
		for i := 0; i < 1000; i++ {
			subject := types.EntityId(fmt.Sprintf("https://ex.test/entity/%d", i))
			if registry.ShardForSubject(subject) == 0 {
				subjectForShard0 = subject
				break
			}
		}

		nodeID, err := registry.GetNodeForSubject(subjectForShard0)
		if err != nil {
			t.Fatalf("failed to get node for subject: %v", err)
		}
		if nodeID != "shard-node-1" {
			t.Errorf("expected shard-node-1 for subject in shard 0, got %s", nodeID)
		}
	})

	t.Run("get node for unassigned shard", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if _, err := registry.GetNodeForSubject("https://ex.test/entity/some"); err == nil {
			t.Error("expected error for unassigned shard, got nil")
		}
	})
}

// TestGetAllAssignments tests retrieving all shard assignments
func TestGetAllAssignments(t *testing.T) {
	t.Run("get all assignments", func(t *testing.T) {
		registry := NewShardRegistry(4)
		registry.AssignShard(0, "shard-node-1", true)
		registry.AssignShard(1, "shard-node-2", true)
		registry.AssignShard(2, "shard-node-1", false) // replica

		assignments := registry.GetAllAssignments()
		if len(assignments) != 3 {
			t.Errorf("expected 3 assignments, got %d", len(assignments))
		}

		found := make(map[planner.ShardID]bool)
		for _, assignment := range assignments {
			found[assignment.ShardID] = true
		}
		for _, shardID := range []planner.ShardID{0, 1, 2} {
			if !found[shardID] {
				t.Errorf("shard %d not found in assignments", shardID)
			}
		}
	})
}

// TestGetNodeShards tests getting all shards for a specific node
func TestGetNodeShards(t *testing.T) {
	t.Run("get shards for node", func(t *testing.T) {
		registry := NewShardRegistry(6)
		registry.AssignShard(0, "shard-node-1", true)
		registry.AssignShard(1, "shard-node-2", true)
		registry.AssignShard(2, "shard-node-1", true)
		registry.AssignShard(3, "shard-node-2", true)
		registry.AssignShard(4, "shard-node-1", false) // replica
		registry.AssignShard(5, "shard-node-3", true)

		shards := registry.GetNodeShards("shard-node-1")
		if len(shards) != 3 {
			t.Errorf("expected 3 shards for shard-node-1, got %d", len(shards))
		}

		expectedShards := map[planner.ShardID]bool{0: true, 2: true, 4: true}
		for _, shard := range shards {
			if !expectedShards[shard] {
				t.Errorf("unexpected shard %d for shard-node-1", shard)
			}
		}

		shards = registry.GetNodeShards("shard-node-4")
		if len(shards) != 0 {
			t.Errorf("expected 0 shards for unassigned node, got %d", len(shards))
		}
	})
}

// TestRemoveShard tests removing shard assignments
func TestRemoveShard(t *testing.T) {
	t.Run("remove assigned shard", func(t *testing.T) {
		registry := NewShardRegistry(4)
		registry.AssignShard(0, "shard-node-1", true)

		if err := registry.RemoveShard(0); err != nil {
			t.Fatalf("failed to remove shard: %v", err)
		}
		if assignment := registry.GetAssignment(0); assignment != nil {
			t.Error("expected nil assignment after removal")
		}
	})

	t.Run("remove unassigned shard", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.RemoveShard(0); err != nil {
			t.Error("removing unassigned shard should not error")
		}
	})

	t.Run("remove invalid shard ID", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.RemoveShard(5); err == nil {
			t.Error("expected error for invalid shard ID")
		}
	})
}

// TestConcurrentOperations tests thread safety of registry
func TestConcurrentOperations(t *testing.T) {
	t.Run("concurrent assignments", func(t *testing.T) {
		registry := NewShardRegistry(100)

		var wg sync.WaitGroup
		numGoroutines := 50
		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(id int) {
				defer wg.Done()
				shardID := id % 100
				nodeID := fmt.Sprintf("shard-node-%d", id%10)
				registry.AssignShard(shardID, nodeID, true)
			}(i)
		}
		wg.Wait()

		if assignments := registry.GetAllAssignments(); len(assignments) == 0 {
			t.Error("expected some assignments after concurrent operations")
		}
	})

	t.Run("concurrent reads", func(t *testing.T) {
		registry := NewShardRegistry(10)
		for i := 0; i < 10; i++ {
			registry.AssignShard(i, fmt.Sprintf("shard-node-%d", i%3), true)
		}

		var wg sync.WaitGroup
		numReaders := 100
		wg.Add(numReaders)
		for i := 0; i < numReaders; i++ {
			go func(id int) {
				defer wg.Done()
				subject := types.EntityId(fmt.Sprintf("https://ex.test/entity/%d", id))
				registry.ShardForSubject(subject)
				registry.GetNodeForSubject(subject)
				registry.GetAllAssignments()
				registry.GetAssignment(id % 10)
			}(i)
		}
		wg.Wait()
	})

	t.Run("concurrent mixed operations", func(t *testing.T) {
		registry := NewShardRegistry(20)

		var wg sync.WaitGroup
		numOps := 100

		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func(id int) {
				defer wg.Done()
				shardID := id % 20
				nodeID := fmt.Sprintf("shard-node-%d", id%5)
				registry.AssignShard(shardID, nodeID, id%2 == 0)
			}(i)
		}

		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func(id int) {
				defer wg.Done()
				subject := types.EntityId(fmt.Sprintf("https://ex.test/entity/%d", id))
				registry.ShardForSubject(subject)
				registry.GetNodeForSubject(subject)
			}(i)
		}

		wg.Add(numOps / 2)
		for i := 0; i < numOps/2; i++ {
			go func(id int) {
				defer wg.Done()
				registry.RemoveShard(id % 20)
			}(i)
		}

		wg.Wait()

		if err := registry.AssignShard(0, "final-node", true); err != nil {
			t.Errorf("registry not functional after concurrent ops: %v", err)
		}
	})
}

// TestRebalancing tests shard rebalancing operations
func TestRebalancing(t *testing.T) {
	t.Run("rebalance shards across nodes", func(t *testing.T) {
		registry := NewShardRegistry(12)
		for i := 0; i < 12; i++ {
			registry.AssignShard(i, "shard-node-1", true)
		}

		nodes := []string{"shard-node-1", "shard-node-2", "shard-node-3"}
		if err := registry.RebalanceShards(nodes); err != nil {
			t.Fatalf("failed to rebalance: %v", err)
		}

		for _, nodeID := range nodes {
			shards := registry.GetNodeShards(nodeID)
			if len(shards) < 3 || len(shards) > 5 {
				t.Errorf("node %s has unbalanced shard count: %d", nodeID, len(shards))
			}
		}

		if assignments := registry.GetAllAssignments(); len(assignments) != 12 {
			t.Errorf("expected 12 assignments after rebalance, got %d", len(assignments))
		}
	})

	t.Run("rebalance with no nodes", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.RebalanceShards([]string{}); err == nil {
			t.Error("expected error when rebalancing with no nodes")
		}
	})
}
