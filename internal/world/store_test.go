package world

import (
	"math"
	"sync"
	"testing"
)

func uniformPose(name string, v float64) Pose {
	return Pose{
		Name:        name,
		Position:    Vector3{X: v, Y: v, Z: v},
		Orientation: &Quaternion{X: v, Y: v, Z: v, W: v},
		Observed:    FieldX | FieldY | FieldZ | orientationFields,
	}
}

func TestStore_PutReplaces(t *testing.T) {
	store := NewStore()

	store.Put(uniformPose("box_1", 1))
	store.Put(uniformPose("box_1", 2))

	if store.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", store.Len())
	}

	pose, ok := store.Get("box_1")
	if !ok {
		t.Fatal("box_1 not found")
	}
	if pose.Position.X != 2 || pose.Orientation.W != 2 {
		t.Errorf("Expected last write to win, got %+v", pose)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	store := NewStore()
	store.Put(uniformPose("sphere", 1))

	snapshot := store.Snapshot()
	p := snapshot["sphere"]
	p.Orientation.W = 99
	p.Position.X = 99
	snapshot["sphere"] = p
	delete(snapshot, "sphere")

	pose, _ := store.Get("sphere")
	if pose.Position.X != 1 || pose.Orientation.W != 1 {
		t.Errorf("Snapshot mutation leaked into store: %+v", pose)
	}
}

func TestStore_PutDoesNotAliasCaller(t *testing.T) {
	store := NewStore()
	pose := uniformPose("cylinder", 3)
	store.Put(pose)

	pose.Orientation.W = 42

	stored, _ := store.Get("cylinder")
	if stored.Orientation.W != 3 {
		t.Errorf("Expected stored orientation to be independent, got %v", stored.Orientation.W)
	}
}

func TestStore_NamesAndFind(t *testing.T) {
	store := NewStore()
	for _, name := range []string{"vehicle_blue", "box_2", "ground_plane", "box_1"} {
		store.Put(uniformPose(name, 0))
	}

	names := store.Names()
	expected := []string{"box_1", "box_2", "ground_plane", "vehicle_blue"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %d names, got %d", len(expected), len(names))
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], expected[i])
		}
	}

	testCases := []struct {
		name   string
		substr string
		want   string
		found  bool
	}{
		{name: "vehicle", substr: "vehicle", want: "vehicle_blue", found: true},
		{name: "first box in order", substr: "box", want: "box_1", found: true},
		{name: "case sensitive", substr: "Vehicle", found: false},
		{name: "empty", substr: "", found: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := store.Find(tc.substr)
			if ok != tc.found || got != tc.want {
				t.Errorf("Find(%q) = %q, %v; want %q, %v", tc.substr, got, ok, tc.want, tc.found)
			}
		})
	}
}

// 書き込み中の Pose が読み手に混ざった状態で見えないことを確認する
func TestStore_SnapshotAtomicity(t *testing.T) {
	store := NewStore()
	store.Put(uniformPose("vehicle", 0))

	const writes = 2000
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			store.Put(uniformPose("vehicle", float64(i)))
		}
	}()

	errCh := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				p := store.Snapshot()["vehicle"]
				v := p.Position.X
				q := p.Orientation
				if p.Position.Y != v || p.Position.Z != v || q.X != v || q.Y != v || q.Z != v || q.W != v {
					select {
					case errCh <- "torn read observed":
					default:
					}
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for msg := range errCh {
		t.Fatal(msg)
	}
}

func TestQuaternion_Yaw(t *testing.T) {
	testCases := []struct {
		name string
		q    Quaternion
		want float64
	}{
		{name: "identity", q: Quaternion{W: 1}, want: 0},
		{name: "quarter turn", q: Quaternion{Z: math.Sin(math.Pi / 4), W: math.Cos(math.Pi / 4)}, want: math.Pi / 2},
		{name: "half turn", q: Quaternion{Z: 1, W: 0}, want: math.Pi},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.q.Yaw()
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Yaw() = %v, want %v", got, tc.want)
			}
		})
	}
}
