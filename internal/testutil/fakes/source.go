// Package fakes provides in-memory implementations of the collaborator ports for tests.
package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// Source is an in-memory SourceCatalog
type Source struct {
	subscriptions    map[int64]*domain.SourceSubscription
	products         map[int64]*domain.SourceProduct
	renewalOrders    map[int64][]int64
	OrderMeta        map[int64]map[string]string
	PendingActions   map[int64]int
	ManualRenewal    map[int64]bool
	GetErrors        map[int64]error
	Status           domain.SourceSystemStatus
	mu               sync.Mutex
	AttachableActive bool
	// StaleMigratedIndex makes ListMigratedSubscriptionIDs ignore markers, like a lagging meta index
	StaleMigratedIndex bool
	WriteMarkerErr     error
	ListErr            error
}

// NewSource creates an active, compatible source with no records
func NewSource() *Source {
	return &Source{
		subscriptions:  map[int64]*domain.SourceSubscription{},
		products:       map[int64]*domain.SourceProduct{},
		renewalOrders:  map[int64][]int64{},
		OrderMeta:      map[int64]map[string]string{},
		PendingActions: map[int64]int{},
		ManualRenewal:  map[int64]bool{},
		GetErrors:      map[int64]error{},
		Status:         domain.SourceSystemStatus{Active: true, Version: "5.1.0", Compatible: true},
	}
}

// AddSubscription stores a subscription
func (s *Source) AddSubscription(sub *domain.SourceSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
}

// AddProduct stores a product
func (s *Source) AddProduct(p *domain.SourceProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddRenewalOrders records renewal orders of a subscription
func (s *Source) AddRenewalOrders(subscriptionID int64, orderIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewalOrders[subscriptionID] = append(s.renewalOrders[subscriptionID], orderIDs...)
}

// Marker returns the stored marker of a subscription
func (s *Source) Marker(id int64) domain.MigrationMarker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscriptions[id]; ok {
		return sub.Marker
	}
	return domain.MigrationMarker{}
}

func (s *Source) SystemStatus(ctx context.Context) (domain.SourceSystemStatus, error) {
	return s.Status, nil
}

func (s *Source) AttachableSchemesActive(ctx context.Context) (bool, error) {
	return s.AttachableActive, nil
}

func (s *Source) ListSubscriptionIDs(ctx context.Context, statuses []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var ids []int64
	for id, sub := range s.subscriptions {
		if len(statuses) == 0 || contains(statuses, sub.Status) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (s *Source) ListMigratedSubscriptionIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if s.StaleMigratedIndex {
		return []int64{}, nil
	}
	var ids []int64
	for id, sub := range s.subscriptions {
		if sub.Marker.Migrated {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (s *Source) GetSubscription(ctx context.Context, id int64) (*domain.SourceSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.GetErrors[id]; err != nil {
		return nil, err
	}
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Source) GetMarker(ctx context.Context, id int64) (domain.MigrationMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return domain.MigrationMarker{}, domain.ErrRecordNotFound
	}
	return sub.Marker, nil
}

func (s *Source) WriteMarker(ctx context.Context, id int64, targetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteMarkerErr != nil {
		return s.WriteMarkerErr
	}
	sub, ok := s.subscriptions[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	sub.Marker = domain.MigrationMarker{Migrated: true, TargetID: targetID}
	return nil
}

func (s *Source) ListRenewalOrderIDs(ctx context.Context, subscriptionID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.renewalOrders[subscriptionID]...), nil
}

func (s *Source) LinkOrders(ctx context.Context, targetID int64, links []domain.OrderLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		meta, ok := s.OrderMeta[l.OrderID]
		if !ok {
			meta = map[string]string{}
			s.OrderMeta[l.OrderID] = meta
		}
		meta[domain.MetaTargetSubscription] = fmt.Sprintf("%d", targetID)
		if l.Renewal {
			meta[domain.MetaRenewalOrderFlag] = "yes"
		}
	}
	return nil
}

func (s *Source) CountProducts(ctx context.Context, productType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.products {
		if p.Type == productType {
			n++
		}
	}
	return n, nil
}

func (s *Source) CountAttachableProducts(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.products {
		if p.HasAddonPlans && !isSubscriptionType(p.Type) {
			n++
		}
	}
	return n, nil
}

func (s *Source) ListEligibleProductIDs(ctx context.Context, includeAttachable bool, offset, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, p := range s.products {
		if isSubscriptionType(p.Type) || (includeAttachable && p.HasAddonPlans) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	if offset >= len(ids) {
		return []int64{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], nil
}

func (s *Source) GetProduct(ctx context.Context, id int64) (*domain.SourceProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.GetErrors[id]; err != nil {
		return nil, err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return p, nil
}

func (s *Source) CancelRenewalActions(ctx context.Context, subscriptionID int64, hooks []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.PendingActions[subscriptionID]
	delete(s.PendingActions, subscriptionID)
	return n, nil
}

func (s *Source) SetManualRenewal(ctx context.Context, subscriptionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[subscriptionID]; !ok {
		return domain.ErrRecordNotFound
	}
	s.ManualRenewal[subscriptionID] = true
	return nil
}

func isSubscriptionType(t string) bool {
	return t == domain.ProductTypeSubscription || t == domain.ProductTypeVariableSubscription
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
