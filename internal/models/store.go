package models

import (
	"errors"
	"sync/atomic"
)

// ErrNotFound is returned when an entity is not present in the data store.
var ErrNotFound = errors.New("entity not found")

// DataStore provides thread-safe read access to the entity records the
// engine consumes. The engine never creates or deletes records; writes flow
// through the admin layer and land here via reload.
type DataStore interface {
	// Read operations (hot path)
	ListCandidates(surface, position string) []Placement
	GetPlacement(placementID string) *Placement
	GetCreative(creativeID int) *Creative
	GetCampaign(campaignID int) *Campaign
	GetCoupon(couponID int) *Coupon
	GetCouponByCode(code string) *Coupon
	// ListCouponsByPlacement returns the coupons linked to a placement in
	// join-priority order (highest first).
	ListCouponsByPlacement(placementID string) []Coupon
	GetSurface(surfaceID string) *Surface

	// Iteration (reporting and forecasting)
	ListPlacementsByCampaign(campaignID int) []Placement
	ListPlacementsBySurface(surfaceID string) []Placement
	GetAllPlacements() []Placement
	GetAllSurfaces() []Surface

	// Write operations (reload path)
	SetCampaigns(campaigns []Campaign) error
	SetCreatives(creatives []Creative) error
	SetPlacements(placements []Placement) error
	SetCoupons(coupons []Coupon) error
	SetSurfaces(surfaces []Surface) error

	// ReloadAll swaps every entity set in a single atomic snapshot.
	ReloadAll(campaigns []Campaign, creatives []Creative, placements []Placement, coupons []Coupon, surfaces []Surface) error
}

// slotKey indexes placements by the surface/position pair they compete in.
type slotKey struct {
	surface  string
	position string
}

// dataSnapshot is an immutable view of all entity records. Readers always see
// a complete, consistent set; reloads build a new snapshot and swap the
// pointer.
type dataSnapshot struct {
	campaigns          map[int]*Campaign
	creatives          map[int]*Creative
	placements         []Placement
	placementByID      map[string]*Placement
	bySlot             map[slotKey][]Placement
	byCampaign         map[int][]Placement
	bySurface          map[string][]Placement
	coupons            map[int]*Coupon
	couponByCode       map[string]*Coupon
	couponsByPlacement map[string][]Coupon
	surfaces           []Surface
	surfaceByID        map[string]*Surface
}

// InMemoryDataStore implements DataStore with atomic snapshot swaps.
type InMemoryDataStore struct {
	data atomic.Pointer[dataSnapshot]
}

// NewInMemoryDataStore creates an empty store.
func NewInMemoryDataStore() *InMemoryDataStore {
	s := &InMemoryDataStore{}
	s.data.Store(buildSnapshot(nil, nil, nil, nil, nil))
	return s
}

func buildSnapshot(campaigns []Campaign, creatives []Creative, placements []Placement, coupons []Coupon, surfaces []Surface) *dataSnapshot {
	snap := &dataSnapshot{
		campaigns:          make(map[int]*Campaign, len(campaigns)),
		creatives:          make(map[int]*Creative, len(creatives)),
		placements:         placements,
		placementByID:      make(map[string]*Placement, len(placements)),
		bySlot:             make(map[slotKey][]Placement),
		byCampaign:         make(map[int][]Placement),
		bySurface:          make(map[string][]Placement),
		coupons:            make(map[int]*Coupon, len(coupons)),
		couponByCode:       make(map[string]*Coupon, len(coupons)),
		couponsByPlacement: make(map[string][]Coupon),
		surfaces:           surfaces,
		surfaceByID:        make(map[string]*Surface, len(surfaces)),
	}
	for i := range campaigns {
		c := campaigns[i]
		snap.campaigns[c.ID] = &c
	}
	for i := range creatives {
		c := creatives[i]
		snap.creatives[c.ID] = &c
	}
	for i := range placements {
		p := &snap.placements[i]
		snap.placementByID[p.ID] = p
		k := slotKey{surface: p.Surface, position: p.Position}
		snap.bySlot[k] = append(snap.bySlot[k], *p)
		snap.byCampaign[p.CampaignID] = append(snap.byCampaign[p.CampaignID], *p)
		snap.bySurface[p.Surface] = append(snap.bySurface[p.Surface], *p)
	}
	for i := range coupons {
		c := coupons[i]
		snap.coupons[c.ID] = &c
		snap.couponByCode[c.Code] = &c
		for _, pid := range c.PlacementIDs {
			snap.couponsByPlacement[pid] = append(snap.couponsByPlacement[pid], c)
		}
	}
	for i := range surfaces {
		s := &snap.surfaces[i]
		snap.surfaceByID[s.ID] = s
	}
	return snap
}

// mutate rebuilds the snapshot with one entity set replaced.
func (s *InMemoryDataStore) mutate(fn func(campaigns []Campaign, creatives []Creative, placements []Placement, coupons []Coupon, surfaces []Surface) *dataSnapshot) {
	cur := s.data.Load()
	campaigns := make([]Campaign, 0, len(cur.campaigns))
	for _, c := range cur.campaigns {
		campaigns = append(campaigns, *c)
	}
	creatives := make([]Creative, 0, len(cur.creatives))
	for _, c := range cur.creatives {
		creatives = append(creatives, *c)
	}
	coupons := make([]Coupon, 0, len(cur.coupons))
	for _, c := range cur.coupons {
		coupons = append(coupons, *c)
	}
	s.data.Store(fn(campaigns, creatives, cur.placements, coupons, cur.surfaces))
}

// ListCandidates returns every placement registered for the surface/position
// slot, regardless of lifecycle state. Lifecycle filtering is the
// orchestrator's job so that scheduled and paused placements still show up in
// diagnostics.
func (s *InMemoryDataStore) ListCandidates(surface, position string) []Placement {
	snap := s.data.Load()
	return snap.bySlot[slotKey{surface: surface, position: position}]
}

func (s *InMemoryDataStore) GetPlacement(placementID string) *Placement {
	return s.data.Load().placementByID[placementID]
}

func (s *InMemoryDataStore) GetCreative(creativeID int) *Creative {
	return s.data.Load().creatives[creativeID]
}

func (s *InMemoryDataStore) GetCampaign(campaignID int) *Campaign {
	return s.data.Load().campaigns[campaignID]
}

func (s *InMemoryDataStore) GetCoupon(couponID int) *Coupon {
	return s.data.Load().coupons[couponID]
}

func (s *InMemoryDataStore) GetCouponByCode(code string) *Coupon {
	return s.data.Load().couponByCode[code]
}

func (s *InMemoryDataStore) ListCouponsByPlacement(placementID string) []Coupon {
	return s.data.Load().couponsByPlacement[placementID]
}

func (s *InMemoryDataStore) GetSurface(surfaceID string) *Surface {
	return s.data.Load().surfaceByID[surfaceID]
}

func (s *InMemoryDataStore) ListPlacementsByCampaign(campaignID int) []Placement {
	return s.data.Load().byCampaign[campaignID]
}

func (s *InMemoryDataStore) ListPlacementsBySurface(surfaceID string) []Placement {
	return s.data.Load().bySurface[surfaceID]
}

func (s *InMemoryDataStore) GetAllPlacements() []Placement {
	return s.data.Load().placements
}

func (s *InMemoryDataStore) GetAllSurfaces() []Surface {
	return s.data.Load().surfaces
}

func (s *InMemoryDataStore) SetCampaigns(campaigns []Campaign) error {
	s.mutate(func(_ []Campaign, creatives []Creative, placements []Placement, coupons []Coupon, surfaces []Surface) *dataSnapshot {
		return buildSnapshot(campaigns, creatives, placements, coupons, surfaces)
	})
	return nil
}

func (s *InMemoryDataStore) SetCreatives(creatives []Creative) error {
	s.mutate(func(campaigns []Campaign, _ []Creative, placements []Placement, coupons []Coupon, surfaces []Surface) *dataSnapshot {
		return buildSnapshot(campaigns, creatives, placements, coupons, surfaces)
	})
	return nil
}

func (s *InMemoryDataStore) SetPlacements(placements []Placement) error {
	s.mutate(func(campaigns []Campaign, creatives []Creative, _ []Placement, coupons []Coupon, surfaces []Surface) *dataSnapshot {
		return buildSnapshot(campaigns, creatives, placements, coupons, surfaces)
	})
	return nil
}

func (s *InMemoryDataStore) SetCoupons(coupons []Coupon) error {
	s.mutate(func(campaigns []Campaign, creatives []Creative, placements []Placement, _ []Coupon, surfaces []Surface) *dataSnapshot {
		return buildSnapshot(campaigns, creatives, placements, coupons, surfaces)
	})
	return nil
}

func (s *InMemoryDataStore) SetSurfaces(surfaces []Surface) error {
	s.mutate(func(campaigns []Campaign, creatives []Creative, placements []Placement, coupons []Coupon, _ []Surface) *dataSnapshot {
		return buildSnapshot(campaigns, creatives, placements, coupons, surfaces)
	})
	return nil
}

func (s *InMemoryDataStore) ReloadAll(campaigns []Campaign, creatives []Creative, placements []Placement, coupons []Coupon, surfaces []Surface) error {
	s.data.Store(buildSnapshot(campaigns, creatives, placements, coupons, surfaces))
	return nil
}
