package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

type ProducerInfo struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ProducerRegistry holds the signal producers a backtest may select, with
// the vote weight applied to each producer's confidence.
type ProducerRegistry struct {
	mutex     sync.RWMutex
	producers map[string]models.SignalProducer
	weights   map[string]float64
}

func NewProducerRegistry() *ProducerRegistry {
	return &ProducerRegistry{
		producers: make(map[string]models.SignalProducer),
		weights:   make(map[string]float64),
	}
}

// NewDefaultRegistry registers the built-in producers and applies any weight
// overrides from config.
func NewDefaultRegistry(config *eventmodels.EngineConfigYAML) (*ProducerRegistry, error) {
	registry := NewProducerRegistry()

	producers := []models.SignalProducer{
		NewMomentumProducer(),
		NewMeanReversionProducer(),
		NewBreakoutProducer(),
		NewRsiProducer(),
	}

	for _, producer := range producers {
		if err := registry.Register(producer); err != nil {
			return nil, err
		}
	}

	for id, weight := range config.ProducerWeights {
		if err := registry.SetWeight(id, weight); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func (r *ProducerRegistry) Register(producer models.SignalProducer) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id := producer.ID()
	if _, found := r.producers[id]; found {
		return fmt.Errorf("producer %s already registered", id)
	}

	r.producers[id] = producer
	r.weights[id] = 1.0

	return nil
}

func (r *ProducerRegistry) SetWeight(id string, weight float64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, found := r.producers[id]; !found {
		return fmt.Errorf("%w: %s", models.ErrUnknownProducer, id)
	}

	if weight < 0 {
		return fmt.Errorf("producer %s weight must not be negative", id)
	}

	r.weights[id] = weight

	return nil
}

func (r *ProducerRegistry) Get(id string) (models.SignalProducer, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	producer, found := r.producers[id]
	return producer, found
}

// Weight defaults to 1.0 for producers registered without an override.
func (r *ProducerRegistry) Weight(id string) float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	weight, found := r.weights[id]
	if !found {
		return 1.0
	}

	return weight
}

func (r *ProducerRegistry) List() []ProducerInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	infos := make([]ProducerInfo, 0, len(r.producers))
	for id, producer := range r.producers {
		infos = append(infos, ProducerInfo{
			ID:     id,
			Name:   producer.Name(),
			Weight: r.weights[id],
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	return infos
}
