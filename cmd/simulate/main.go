// Command simulate drives concurrent discovery and booking traffic against a
// running api-server and reports outcomes and latency per operation.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

type simConfig struct {
	BaseURL      string
	Duration     time.Duration
	Workers      int
	Patients     int
	BookRatio    float64
	ChangeRatio  float64
	SearchRatio  float64
	DoctorLimit  int
	RequestLimit time.Duration
}

func main() {
	cfg := simConfig{}
	flag.StringVar(&cfg.BaseURL, "url", getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "api-server base URL")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to run")
	flag.IntVar(&cfg.Workers, "workers", 10, "concurrent workers")
	flag.IntVar(&cfg.Patients, "patients", 500, "distinct patient ids to book for")
	flag.Float64Var(&cfg.BookRatio, "book", 0.4, "share of booking operations")
	flag.Float64Var(&cfg.ChangeRatio, "change", 0.3, "share of confirm, cancel and reschedule operations")
	flag.Float64Var(&cfg.SearchRatio, "search", 0.3, "share of searches and reads")
	flag.IntVar(&cfg.DoctorLimit, "doctors", 200, "doctors to load slots from")
	flag.DurationVar(&cfg.RequestLimit, "timeout", 10*time.Second, "per request timeout")
	flag.Parse()

	logger := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("APP_ENV", "dev")).With("simulate")
	if err := cfg.normalize(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	client := newAPIClient(cfg.BaseURL, &http.Client{Timeout: cfg.RequestLimit})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	slots, err := client.openSlots(ctx, cfg.DoctorLimit)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("load open slots")
	}
	if len(slots) == 0 {
		logger.Fatal().Msg("no open slots found; seed the catalog first")
	}
	logger.Info().Int("slots", len(slots)).Int("workers", cfg.Workers).Dur("duration", cfg.Duration).Msg("simulation starting")

	sim := &simulator{cfg: cfg, client: client, slots: slots, stats: newReport()}
	sim.run()
	sim.stats.print(os.Stdout, cfg)
}

func (c *simConfig) normalize() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if c.Patients <= 0 {
		return fmt.Errorf("patients must be > 0")
	}
	total := c.BookRatio + c.ChangeRatio + c.SearchRatio
	if total <= 0 {
		return fmt.Errorf("operation ratios must add up to more than zero")
	}
	c.BookRatio /= total
	c.ChangeRatio /= total
	c.SearchRatio /= total
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

type simulator struct {
	cfg    simConfig
	client *apiClient
	slots  []slotTarget
	stats  *report

	mu     sync.RWMutex
	booked []string
}

func (s *simulator) remember(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booked = append(s.booked, id)
}

func (s *simulator) randomBooked(rng *rand.Rand) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.booked) == 0 {
		return "", false
	}
	return s.booked[rng.Intn(len(s.booked))], true
}

func (s *simulator) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, rand.New(rand.NewSource(time.Now().UnixNano()+int64(id))))
		}(i)
	}
	wg.Wait()
}

func (s *simulator) worker(ctx context.Context, rng *rand.Rand) {
	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.cfg.BookRatio:
			s.book(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.ChangeRatio:
			s.change(ctx, rng)
		default:
			s.read(ctx, rng)
		}
	}
}

func (s *simulator) book(ctx context.Context, rng *rand.Rand) {
	slot := s.slots[rng.Intn(len(s.slots))]
	patient := fmt.Sprintf("patient-%d", rng.Intn(s.cfg.Patients))

	start := time.Now()
	id, status, err := s.client.book(ctx, slot, patient)
	s.stats.record("book", time.Since(start), status, err)
	if err == nil && status == http.StatusCreated {
		s.remember(id)
	}
}

func (s *simulator) change(ctx context.Context, rng *rand.Rand) {
	id, ok := s.randomBooked(rng)
	if !ok {
		return
	}

	start := time.Now()
	switch rng.Intn(3) {
	case 0:
		status, err := s.client.post(ctx, "/appointments/"+id+"/confirm", nil)
		s.stats.record("confirm", time.Since(start), status, err)
	case 1:
		status, err := s.client.post(ctx, "/appointments/"+id+"/cancel", map[string]string{"reason": "simulated"})
		s.stats.record("cancel", time.Since(start), status, err)
	default:
		target := s.slots[rng.Intn(len(s.slots))]
		newID, status, err := s.client.reschedule(ctx, id, target)
		s.stats.record("reschedule", time.Since(start), status, err)
		if err == nil && status == http.StatusOK {
			s.remember(newID)
		}
	}
}

func (s *simulator) read(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	if id, ok := s.randomBooked(rng); ok && rng.Intn(2) == 0 {
		status, err := s.client.get(ctx, "/appointments/"+id)
		s.stats.record("get", time.Since(start), status, err)
		return
	}
	sorts := []string{"rating_desc", "experience_desc", "fee_asc"}
	status, err := s.client.get(ctx, "/doctors?limit=20&sort="+sorts[rng.Intn(len(sorts))])
	s.stats.record("search", time.Since(start), status, err)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
