package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/fakeapi"
	"github.com/hackgods/petclinic-scheduling/internal/logging"
)

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "data generator seed")
	clinics := flag.Int("clinics", 5, "clinics to generate")
	perClinic := flag.Int("practitioners", 4, "practitioners per clinic")
	pets := flag.Int("pets", 200, "pets to generate")
	env := flag.String("env", "dev", "log format (dev for console)")
	flag.Parse()

	logger := logging.New("info", *env)
	logger.Info().Uint64("seed", *seed).Msg("fake-backend starting")

	backend := fakeapi.New(fakeapi.Options{})
	backend.Seed(*seed, *clinics, *perClinic, *pets)
	registerUsers(backend, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			os.Exit(1)
		}
	}()

	<-rootCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("fake-backend stopped")
}

// registerUsers adds one well-known token per role so local clients can
// authenticate without a real identity provider.
func registerUsers(b *fakeapi.Backend, logger zerolog.Logger) {
	clinics := b.Clinics()
	if len(clinics) == 0 {
		return
	}
	home := clinics[0]

	b.AddUser("admin-token", appointment.Actor{ID: "admin", Role: appointment.RoleAdmin})
	b.AddUser("desk-token", appointment.Actor{ID: "front-desk", Role: appointment.RoleFrontDesk, ClinicID: home.ID})
	if ps := b.Practitioners(home.ID); len(ps) > 0 {
		b.AddUser("vet-token", appointment.Actor{ID: ps[0].ID, Role: appointment.RolePractitioner, ClinicID: home.ID})
	}
	if pets := b.Pets(); len(pets) > 0 {
		b.AddUser("owner-token", appointment.Actor{ID: pets[0].Owner.ID(), Role: appointment.RoleClient})
	}

	logger.Info().
		Str("clinic_id", home.ID).
		Strs("tokens", []string{"admin-token", "desk-token", "vet-token", "owner-token"}).
		Msg("session users registered")
}
