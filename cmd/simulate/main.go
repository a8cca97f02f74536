package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ConfirmRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	PatientLimit  int
	Days          int
	Burst         int
	SessionSecret string
	Location      *time.Location
	PostgresDSN   string
}

type bookedAppointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

// DataPool holds the ids the workers draw from.
type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Services []uuid.UUID
	Slots    []time.Time

	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *logging.Logger
	metrics Metrics

	tokenMu sync.Mutex
	tokens  map[uuid.UUID]string
}

func main() {
	logger := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL"), Service: "simulate"})

	cfg := loadConfig(logger)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", "error", err)
	}

	logger.Info("simulator starting",
		"duration", cfg.Duration, "workers", cfg.Workers,
		"booking", cfg.BookingRatio, "confirm", cfg.ConfirmRatio, "cancel", cfg.CancelRatio, "read", cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal("connect postgres", "error", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", "error", err)
	}
	logger.Info("data loaded",
		"patients", len(dataPool.Patients), "doctors", len(dataPool.Doctors),
		"services", len(dataPool.Services), "slots", len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		tokens: make(map[uuid.UUID]string),
	}

	if cfg.Burst > 0 {
		sim.RunBurst()
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig(logger *logging.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load base config", "error", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		Days:          getInt("SIM_DAYS", 14),
		Burst:         getInt("SIM_BURST", 25),
		SessionSecret: baseCfg.SessionSecret,
		Location:      baseCfg.ClinicLocation,
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required to sign patient sessions")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}
	store := catalog.NewPgStore(pool)

	doctors, err := store.ListDoctors(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for _, d := range doctors {
		dataPool.Doctors = append(dataPool.Doctors, d.ID)
	}

	services, err := store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	for _, s := range services {
		dataPool.Services = append(dataPool.Services, s.ID)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dataPool.Slots = upcomingSlots(time.Now(), cfg.Days, cfg.Location)

	switch {
	case len(dataPool.Patients) == 0:
		return nil, fmt.Errorf("no patients loaded, run the seeder first")
	case len(dataPool.Doctors) == 0:
		return nil, fmt.Errorf("no active doctors loaded")
	case len(dataPool.Services) == 0:
		return nil, fmt.Errorf("no services loaded")
	}

	return dataPool, nil
}

// upcomingSlots lists whole clinic hours inside business hours over the next days.
func upcomingSlots(now time.Time, days int, loc *time.Location) []time.Time {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	var slots []time.Time
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		for h := booking.OpeningHour; h <= booking.ClosingHour; h++ {
			slots = append(slots, time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc))
		}
	}
	return slots
}

func (s *Simulator) token(patientID uuid.UUID) string {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if tok, ok := s.tokens[patientID]; ok {
		return tok
	}
	tok, err := api.IssueSessionToken(s.config.SessionSecret, patientID.String(), api.RolePatient, 24*time.Hour)
	if err != nil {
		s.logger.Fatal("sign session token", "error", err)
	}
	s.tokens[patientID] = tok
	return tok
}

func (s *Simulator) request(ctx context.Context, method, path string, patientID uuid.UUID, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(patientID))
	return s.client.Do(req)
}

// RunBurst fires concurrent bookings at one slot; exactly one may succeed.
func (s *Simulator) RunBurst() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	serviceID := s.pool.Services[rng.Intn(len(s.pool.Services))]
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		statuses  = map[int]int{}
		startGate = make(chan struct{})
	)
	for i := 0; i < s.config.Burst; i++ {
		patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startGate
			resp, err := s.request(ctx, http.MethodPost, "/appointments", patientID, map[string]string{
				"doctor_id":  doctorID.String(),
				"service_id": serviceID.String(),
				"date_time":  slot.Format(time.RFC3339),
			})
			code := 0
			if err == nil {
				code = resp.StatusCode
				resp.Body.Close()
			}
			mu.Lock()
			statuses[code]++
			mu.Unlock()
		}()
	}
	close(startGate)
	wg.Wait()

	s.logger.Info("burst complete",
		"doctor_id", doctorID, "slot", slot, "requests", s.config.Burst,
		"created", statuses[http.StatusCreated], "conflict", statuses[http.StatusConflict],
		"other", s.config.Burst-statuses[http.StatusCreated]-statuses[http.StatusConflict])
	if statuses[http.StatusCreated] > 1 {
		s.logger.Error("double booking detected", "created", statuses[http.StatusCreated])
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doTransition(ctx, rng, "confirm", &s.metrics.Confirm)
		case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
			s.doTransition(ctx, rng, "cancel", &s.metrics.Cancel)
		default:
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doListByPatient(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	body := map[string]string{
		"doctor_id":  s.pool.Doctors[rng.Intn(len(s.pool.Doctors))].String(),
		"service_id": s.pool.Services[rng.Intn(len(s.pool.Services))].String(),
		"date_time":  s.pool.Slots[rng.Intn(len(s.pool.Slots))].Format(time.RFC3339),
	}

	start := time.Now()
	resp, err := s.request(ctx, http.MethodPost, "/appointments", patientID, body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(bookedAppointment{ID: appt.ID, PatientID: patientID})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.request(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", appt.ID, action), appt.PatientID, nil)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.request(ctx, http.MethodGet, "/appointments/"+appt.ID.String(), appt.PatientID, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.request(ctx, http.MethodGet, "/appointments", patientID, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByPatient.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + rule())
	fmt.Println("SIMULATION REPORT")
	fmt.Println(rule())
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
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
