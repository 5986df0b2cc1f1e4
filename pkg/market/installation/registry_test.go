package installation

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000f6")

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		owner    common.Address
		capacity int64
		payment  int64
		wantErr  error
	}{
		{
			name:     "exact minimum payment",
			owner:    owner,
			capacity: 5,
			payment:  50, // rate 10 per unit
		},
		{
			name:     "overpayment accepted",
			owner:    owner,
			capacity: 5,
			payment:  120,
		},
		{
			name:     "payment below minimum",
			owner:    owner,
			capacity: 5,
			payment:  49,
			wantErr:  ErrInsufficientPayment,
		},
		{
			name:     "zero capacity",
			owner:    owner,
			capacity: 0,
			payment:  100,
			wantErr:  ErrInvalidCapacity,
		},
		{
			name:     "unset owner",
			owner:    common.Address{},
			capacity: 5,
			payment:  50,
			wantErr:  ErrInvalidOwner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(10, nil)
			id, err := r.Register(tt.owner, tt.capacity, tt.payment)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if r.Count() != 0 {
					t.Errorf("failed registration grew the registry to %d", r.Count())
				}
				return
			}

			inst, err := r.Get(id)
			if err != nil {
				t.Fatalf("Get(%d): %v", id, err)
			}
			if !inst.Installed {
				t.Error("registered installation not marked installed")
			}
			if inst.Owner != tt.owner || inst.Capacity != tt.capacity {
				t.Errorf("installation = %+v", inst)
			}
		})
	}
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) SaveInstallation(Installation) error { return errors.New("disk full") }

func TestRegistry_StoreFailureLeavesNoRecord(t *testing.T) {
	r := NewRegistry(10, failingStore{})

	if _, err := r.Register(owner, 5, 50); err == nil {
		t.Fatal("register with failing store should error")
	}
	if got := r.Count(); got != 0 {
		t.Errorf("count = %d, a rejected write must not leave a record", got)
	}
	if _, err := r.Get(0); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Get after failed register err = %v, want ErrNotInstalled", err)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry(10, nil)
	if _, err := r.Get(0); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Get on empty registry err = %v, want ErrNotInstalled", err)
	}
	if _, err := r.Get(-1); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Get(-1) err = %v, want ErrNotInstalled", err)
	}
}

func TestRegistry_SequentialIDs(t *testing.T) {
	r := NewRegistry(1, nil)
	for i := int64(0); i < 3; i++ {
		id, err := r.Register(owner, 10, 10)
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if id != i {
			t.Errorf("id = %d, want %d", id, i)
		}
	}
	if r.Count() != 3 {
		t.Errorf("count = %d, want 3", r.Count())
	}
}

func TestRegistry_Restore(t *testing.T) {
	r := NewRegistry(10, nil)
	r.Register(owner, 5, 50)
	r.Register(owner, 7, 70)

	records := make([]Installation, 0, 2)
	for i := int64(0); i < r.Count(); i++ {
		inst, err := r.Get(i)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		records = append(records, inst)
	}

	restored := NewRegistry(10, nil)
	if err := restored.Restore(records); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Count() != 2 {
		t.Errorf("restored count = %d, want 2", restored.Count())
	}

	records[1].ID = 9
	bad := NewRegistry(10, nil)
	if err := bad.Restore(records[1:]); err == nil {
		t.Error("restore with id gap should fail")
	}
}
