package models

import (
	"sync"
	"testing"
	"time"
)

func testSnapshot() ([]Campaign, []Creative, []Placement, []Coupon, []Surface) {
	campaigns := []Campaign{{ID: 1, Name: "Summer Boats"}}
	creatives := []Creative{{ID: 1, CampaignID: 1, Headline: "Sail away"}}
	placements := []Placement{
		{ID: "pl-1", CreativeID: 1, CampaignID: 1, Surface: "home", Position: "top", Weight: 10},
		{ID: "pl-2", CreativeID: 1, CampaignID: 1, Surface: "home", Position: "side", Weight: 10},
		{ID: "pl-3", CreativeID: 1, CampaignID: 2, Surface: "search", Position: "top", Weight: 10},
	}
	coupons := []Coupon{
		{ID: 1, Code: "SAVE10", PlacementIDs: []string{"pl-1", "pl-2"}},
		{ID: 2, Code: "SAVE20", PlacementIDs: []string{"pl-1"}},
	}
	surfaces := []Surface{{ID: "home", Label: "Homepage", Positions: []string{"top", "side"}}}
	return campaigns, creatives, placements, coupons, surfaces
}

func TestInMemoryDataStore_Lookups(t *testing.T) {
	store := NewInMemoryDataStore()
	if err := store.ReloadAll(testSnapshot()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if got := store.ListCandidates("home", "top"); len(got) != 1 || got[0].ID != "pl-1" {
		t.Errorf("ListCandidates(home, top) = %v, want [pl-1]", got)
	}
	if got := store.ListCandidates("home", "missing"); len(got) != 0 {
		t.Errorf("ListCandidates for unknown position = %v, want empty", got)
	}
	if p := store.GetPlacement("pl-3"); p == nil || p.Surface != "search" {
		t.Error("GetPlacement(pl-3) lookup failed")
	}
	if store.GetPlacement("nope") != nil {
		t.Error("GetPlacement for unknown ID must return nil")
	}
	if c := store.GetCouponByCode("SAVE20"); c == nil || c.ID != 2 {
		t.Error("GetCouponByCode(SAVE20) lookup failed")
	}
	if got := store.ListPlacementsByCampaign(1); len(got) != 2 {
		t.Errorf("ListPlacementsByCampaign(1) returned %d placements, want 2", len(got))
	}
	if got := store.ListPlacementsBySurface("home"); len(got) != 2 {
		t.Errorf("ListPlacementsBySurface(home) returned %d placements, want 2", len(got))
	}
	if s := store.GetSurface("home"); s == nil || s.Label != "Homepage" {
		t.Error("GetSurface(home) lookup failed")
	}
}

func TestInMemoryDataStore_CouponJoinOrder(t *testing.T) {
	store := NewInMemoryDataStore()
	if err := store.ReloadAll(testSnapshot()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got := store.ListCouponsByPlacement("pl-1")
	if len(got) != 2 {
		t.Fatalf("ListCouponsByPlacement(pl-1) returned %d coupons, want 2", len(got))
	}
	// Coupons come back in load order, which the loader sorts by join
	// priority.
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("coupon order = [%d, %d], want [1, 2]", got[0].ID, got[1].ID)
	}
}

func TestInMemoryDataStore_SetReplacesOneEntitySet(t *testing.T) {
	store := NewInMemoryDataStore()
	if err := store.ReloadAll(testSnapshot()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := store.SetPlacements([]Placement{
		{ID: "pl-new", CreativeID: 1, CampaignID: 1, Surface: "home", Position: "top", Weight: 5},
	}); err != nil {
		t.Fatalf("set placements: %v", err)
	}

	if store.GetPlacement("pl-1") != nil {
		t.Error("old placement survived SetPlacements")
	}
	if store.GetPlacement("pl-new") == nil {
		t.Error("new placement missing after SetPlacements")
	}
	if store.GetCampaign(1) == nil {
		t.Error("campaigns must survive a placement-only swap")
	}
	if store.GetCoupon(1) == nil {
		t.Error("coupons must survive a placement-only swap")
	}
}

// Readers racing a reload must always observe a complete snapshot, never a
// half-swapped one.
func TestInMemoryDataStore_ConcurrentReadsDuringReload(t *testing.T) {
	store := NewInMemoryDataStore()
	if err := store.ReloadAll(testSnapshot()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				candidates := store.ListCandidates("home", "top")
				for _, p := range candidates {
					if p.ID == "" {
						t.Error("observed placement with empty ID")
						return
					}
				}
			}
		}()
	}

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := store.ReloadAll(testSnapshot()); err != nil {
			t.Errorf("reload: %v", err)
			break
		}
	}
	close(stop)
	wg.Wait()
}
