package fakes

import (
	"context"
	"sort"
	"sync"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// Target is an in-memory TargetCatalog and GatewayRegistry
type Target struct {
	Groups        map[int64]*domain.PlanGroup
	Plans         map[int64]*domain.PlanDefinition
	Relations     map[int64]*domain.PlanRelation
	Subscriptions map[int64]*domain.TargetSubscription
	Items         map[int64][]domain.TargetLineItem
	ItemRefs      map[int64][]string
	Installed     map[string]bool
	// CreatePlanErr, when set, decides per plan whether creation fails
	CreatePlanErr         func(plan *domain.PlanDefinition) error
	CreateSubscriptionErr error
	// AddLineItemErr, when set, decides per item whether attaching it fails
	AddLineItemErr func(subscriptionID int64, item domain.TargetLineItem) error
	Supported             []string
	nextID                int64
	mu                    sync.Mutex
	Active                bool
}

// NewTarget creates an active, empty target
func NewTarget() *Target {
	return &Target{
		Groups:        map[int64]*domain.PlanGroup{},
		Plans:         map[int64]*domain.PlanDefinition{},
		Relations:     map[int64]*domain.PlanRelation{},
		Subscriptions: map[int64]*domain.TargetSubscription{},
		Items:         map[int64][]domain.TargetLineItem{},
		ItemRefs:      map[int64][]string{},
		Installed:     map[string]bool{},
		Supported:     []string{"fkwcs_stripe", "fkwcppcp_paypal"},
		Active:        true,
	}
}

func (t *Target) id() int64 {
	t.nextID++
	return t.nextID
}

// DeleteSubscription removes a target subscription, simulating an orphaned marker
func (t *Target) DeleteSubscription(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.Subscriptions, id)
}

func (t *Target) SystemActive(ctx context.Context) (bool, error) {
	return t.Active, nil
}

func (t *Target) CreatePlanGroup(ctx context.Context, group *domain.PlanGroup) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := *group
	g.ID = t.id()
	t.Groups[g.ID] = &g
	return g.ID, nil
}

func (t *Target) CreatePlan(ctx context.Context, plan *domain.PlanDefinition) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CreatePlanErr != nil {
		if err := t.CreatePlanErr(plan); err != nil {
			return 0, err
		}
	}
	p := *plan
	p.ID = t.id()
	t.Plans[p.ID] = &p
	return p.ID, nil
}

func (t *Target) CreatePlanRelation(ctx context.Context, relation *domain.PlanRelation) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := *relation
	r.ID = t.id()
	t.Relations[r.ID] = &r
	return r.ID, nil
}

func (t *Target) FindPlanGroup(ctx context.Context, productID int64, planType domain.PlanType) (*domain.PlanGroup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.Groups {
		if g.ProductID == productID && g.Type == planType {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *Target) ListPlanRelations(ctx context.Context, productID, variationID int64) ([]domain.PlanRelation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.PlanRelation
	for _, r := range t.Relations {
		if r.ProductID == productID && r.VariationID == variationID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *Target) GetPlan(ctx context.Context, id int64) (*domain.PlanDefinition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.Plans[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *Target) CreateSubscription(ctx context.Context, sub *domain.TargetSubscription) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CreateSubscriptionErr != nil {
		return 0, t.CreateSubscriptionErr
	}
	s := *sub
	s.ID = t.id()
	t.Subscriptions[s.ID] = &s
	return s.ID, nil
}

func (t *Target) SubscriptionExists(ctx context.Context, id int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.Subscriptions[id]
	return ok, nil
}

func (t *Target) FindSubscriptionBySource(ctx context.Context, sourceID int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var found int64
	for id, s := range t.Subscriptions {
		if s.SourceSubscriptionID == sourceID && (found == 0 || id < found) {
			found = id
		}
	}
	return found, nil
}

// BySource returns the IDs of every target subscription created from sourceID
func (t *Target) BySource(sourceID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []int64
	for id, s := range t.Subscriptions {
		if s.SourceSubscriptionID == sourceID {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

func (t *Target) AddLineItem(ctx context.Context, subscriptionID int64, item domain.TargetLineItem) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.AddLineItemErr != nil {
		if err := t.AddLineItemErr(subscriptionID, item); err != nil {
			return 0, err
		}
	}
	t.Items[subscriptionID] = append(t.Items[subscriptionID], item)
	return t.id(), nil
}

func (t *Target) UpdateItemList(ctx context.Context, subscriptionID int64, productRefs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ItemRefs[subscriptionID] = productRefs
	return nil
}

func (t *Target) ListSourceSubscriptionIDs(ctx context.Context) ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []int64
	for _, s := range t.Subscriptions {
		ids = append(ids, s.SourceSubscriptionID)
	}
	sortIDs(ids)
	return ids, nil
}

func (t *Target) SupportedGateways(ctx context.Context) ([]string, error) {
	return t.Supported, nil
}

func (t *Target) HasGateway(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Installed[id], nil
}
