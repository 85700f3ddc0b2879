package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/api"
	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/clinicapi"
	"github.com/hackgods/petclinic-scheduling/internal/logging"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

type SimConfig struct {
	APIBaseURL     string
	BackendURL     string
	Token          string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	TransitionRate float64
	ReadRatio      float64
	DaysAhead      int
}

// DataPool is what workers pick from: directory data loaded once from the
// clinic backend, plus the appointments booked during the run.
type DataPool struct {
	Clinics      []appointment.Clinic
	Pets         []record.Pet
	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Session    OperationMetrics
	Booking    OperationMetrics
	Transition OperationMetrics
	Read       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("APP_ENV", "dev"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("transition", cfg.TransitionRate).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := loadDataPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("clinics", len(dataPool.Clinics)).Int("pets", len(dataPool.Pets)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		BackendURL:     getEnv("CLINIC_API_URL", "http://localhost:9090"),
		Token:          getEnv("SIM_TOKEN", "desk-token"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.5),
		TransitionRate: getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.3),
		DaysAhead:      getInt("SIM_DAYS_AHEAD", 3),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.TransitionRate + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRate /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, cfg SimConfig) (*DataPool, error) {
	backend, err := clinicapi.New(clinicapi.Config{BaseURL: cfg.BackendURL})
	if err != nil {
		return nil, err
	}
	ctx = clinicapi.WithToken(ctx, cfg.Token)

	clinics, err := backend.FetchClinics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clinics: %w", err)
	}
	pets, err := backend.FetchPets(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}

	owned := pets[:0]
	for _, p := range pets {
		if p.Owner.ID() != "" {
			owned = append(owned, p)
		}
	}

	if len(clinics) == 0 {
		return nil, fmt.Errorf("no clinics loaded")
	}
	if len(owned) == 0 {
		return nil, fmt.Errorf("no pets with owners loaded")
	}
	return &DataPool{Clinics: clinics, Pets: owned}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.TransitionRate:
				s.doTransition(ctx, rng)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

// doBooking walks one selection session through clinic, date and slot and
// books the first free slot. Workers share clinics, so they race for slots.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	clinic := s.pool.Clinics[rng.Intn(len(s.pool.Clinics))]
	pet := s.pool.Pets[rng.Intn(len(s.pool.Pets))]
	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))

	start := time.Now()
	var sess api.SessionResponse
	status, err := s.call(ctx, http.MethodPost, "/sessions", api.OpenSessionRequest{Flow: appointment.FlowDateFirst}, &sess)
	ok := err == nil && status == http.StatusCreated
	if ok {
		status, err = s.call(ctx, http.MethodPut, "/sessions/"+sess.ID+"/clinic", api.SelectClinicRequest{ClinicID: clinic.ID}, &sess)
		ok = err == nil && status == http.StatusOK
	}
	if ok {
		status, err = s.call(ctx, http.MethodPut, "/sessions/"+sess.ID+"/date", api.SelectDateRequest{Date: day.Format(time.DateOnly)}, &sess)
		ok = err == nil && status == http.StatusOK
	}
	s.metrics.Session.Record(time.Since(start), ok, false)
	if !ok {
		return
	}
	defer func() {
		_, _ = s.call(context.WithoutCancel(ctx), http.MethodDelete, "/sessions/"+sess.ID, nil, nil)
	}()

	var free []appointment.Slot
	for _, slot := range sess.SlotOptions {
		if slot.Free {
			free = append(free, slot)
		}
	}
	if len(free) == 0 {
		return
	}
	// bias towards the morning so workers collide
	slot := free[rng.Intn(min(len(free), 3))]

	start = time.Now()
	status, err = s.call(ctx, http.MethodPut, "/sessions/"+sess.ID+"/slot", api.SelectSlotRequest{Timestamp: slot.Timestamp}, &sess)
	if err != nil || status != http.StatusOK {
		s.metrics.Booking.Record(time.Since(start), false, status == http.StatusConflict)
		return
	}

	var appt appointment.Appointment
	status, err = s.call(ctx, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		SessionID: sess.ID,
		ClientID:  pet.Owner.ID(),
		PetID:     pet.ID,
		Reason:    "Check-up",
	}, &appt)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	conflict := status == http.StatusConflict || status == http.StatusUnprocessableEntity
	if success && appt.ID != "" {
		s.pool.AddAppointment(appt.ID)
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

var transitionTargets = []appointment.Status{
	appointment.StatusConfirmed,
	appointment.StatusInProgress,
	appointment.StatusCompleted,
	appointment.StatusCancelled,
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	target := transitionTargets[rng.Intn(len(transitionTargets))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+id+"/transitions", api.TransitionRequest{Status: target}, nil)
	s.metrics.Transition.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	pet := s.pool.Pets[rng.Intn(len(s.pool.Pets))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/records?pet_id="+pet.ID, nil, nil)
	s.metrics.Read.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) call(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Open session + fetch slots", &s.metrics.Session)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Record history", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
