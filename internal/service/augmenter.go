package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/intent"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/cache"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/commerce"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/knowledgesearch"
)

const searchLimit = 3

// AugmenterService gathers context fragments from external collaborators
// under a strict per-call deadline. Collaborator failures degrade the result
// set instead of failing the turn: downstream always receives msg.augmented,
// possibly partial.
type AugmenterService struct {
	bus         bus.Bus
	orders      commerce.Lookup
	search      knowledgesearch.Searcher
	cache       cache.Cache
	callTimeout time.Duration
	fragmentTTL time.Duration
	log         *slog.Logger
}

// NewAugmenter creates the augmenter. callTimeout bounds each collaborator
// call; fragmentTTL bounds how long search results are served from cache.
func NewAugmenter(b bus.Bus, orders commerce.Lookup, search knowledgesearch.Searcher, c cache.Cache, callTimeout, fragmentTTL time.Duration, log *slog.Logger) *AugmenterService {
	return &AugmenterService{
		bus:         b,
		orders:      orders,
		search:      search,
		cache:       c,
		callTimeout: callTimeout,
		fragmentTTL: fragmentTTL,
		log:         log,
	}
}

// HandleDispatched processes one msg.dispatched envelope: it resolves the
// order record when the message referenced one, retrieves knowledge fragments
// for the routing target, and publishes msg.augmented.
func (s *AugmenterService) HandleDispatched(ctx context.Context, topic string, data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	var p envelope.DispatchedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	var frags []knowledge.Fragment
	var partial knowledge.Partial

	// Order lookup runs whenever the message carried an order reference,
	// regardless of routing target: the generator's approval rule needs the
	// order total even on policy-routed intents. Order records are never
	// cached; totals and statuses must be live.
	if orderID, ok := p.Dispatch.ExtractedFields[intent.FieldOrderID]; ok {
		if f, ok := s.lookupOrder(ctx, orderID, &partial); ok {
			frags = append(frags, f)
		}
	}

	kfrags, err := s.searchKnowledge(ctx, p.Dispatch.RoutingTarget, p.Content)
	if err != nil {
		s.log.WarnContext(ctx, "knowledge search degraded", "error", err)
		partial.Fail("knowledge")
	} else {
		frags = append(frags, kfrags...)
	}

	if partial.Degraded {
		s.log.WarnContext(ctx, "augmentation partial", "failures", partial.Failures)
	}

	out, err := env.Derive(envelope.TopicAugmented, envelope.AugmentedPayload{
		Content:   p.Content,
		Dispatch:  p.Dispatch,
		Fragments: frags,
		Partial:   partial,
	})
	if err != nil {
		return err
	}
	return publish(ctx, s.bus, out)
}

// lookupOrder resolves one order under the per-call deadline. An unknown
// order id is a definitive collaborator answer, not a degradation; timeouts
// and transport failures are.
func (s *AugmenterService) lookupOrder(ctx context.Context, orderID string, partial *knowledge.Partial) (knowledge.Fragment, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	cctx, span := otelx.StartCollaboratorSpan(cctx, "commerce")
	defer span.End()

	order, err := s.orders.GetOrder(cctx, orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.InfoContext(ctx, "order not found", "order_id", orderID)
			return knowledge.Fragment{}, false
		}
		s.log.WarnContext(ctx, "order lookup degraded", "order_id", orderID, "error", err)
		partial.Fail("commerce")
		return knowledge.Fragment{}, false
	}

	return knowledge.Fragment{
		Type:  knowledge.FragmentOrder,
		Key:   order.OrderID,
		Title: "order " + order.OrderID,
		Fields: map[string]string{
			knowledge.FieldOrderTotal:  strconv.FormatFloat(order.Total, 'f', 2, 64),
			knowledge.FieldOrderStatus: order.Status,
			knowledge.FieldDisplayName: order.CustomerDisplayName,
		},
	}, true
}

// searchKnowledge retrieves ranked fragments for the message, serving
// repeated queries from cache within fragmentTTL.
func (s *AugmenterService) searchKnowledge(ctx context.Context, target, query string) ([]knowledge.Fragment, error) {
	key := fragmentCacheKey(target, query)
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var cached []knowledge.Fragment
		if json.Unmarshal(raw, &cached) == nil {
			return cached, nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	cctx, span := otelx.StartCollaboratorSpan(cctx, "knowledge")
	defer span.End()

	frags, err := s.search.Search(cctx, query, searchLimit)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(frags); err == nil {
		_ = s.cache.Set(ctx, key, raw, s.fragmentTTL)
	}
	return frags, nil
}

func fragmentCacheKey(target, query string) string {
	h := fnv.New64a()
	h.Write([]byte(query))
	return fmt.Sprintf("frag:%s:%x", target, h.Sum64())
}
