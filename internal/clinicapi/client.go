package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/metrics"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

var tracer = otel.Tracer("petclinic.internal.clinicapi")

// Config holds configuration for the clinic API client
type Config struct {
	BaseURL string
	Timeout time.Duration
	Metrics *metrics.SchedulingMetrics
}

// Client talks to the remote clinic API. It implements every collaborator
// interface the scheduling core consumes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.SchedulingMetrics
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("clinicapi: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("clinicapi: invalid BaseURL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    cfg.Metrics,
	}, nil
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token; it is forwarded on every
// request made with the returned context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached with WithToken, or "".
func TokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
// Everything else becomes *appointment.RemoteError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	ctx, span := tracer.Start(ctx, "clinicapi."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("clinicapi.path", path),
	)

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("clinicapi: marshal %s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("clinicapi: build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := TokenFrom(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRemote(op, "transport_error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return &appointment.RemoteError{Message: op + " request failed", Err: err}
	}
	defer resp.Body.Close()

	c.metrics.ObserveRemote(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := decodeError(resp)
		span.SetStatus(codes.Error, remoteErr.Message)
		return remoteErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &appointment.RemoteError{StatusCode: resp.StatusCode, Message: "decode " + op + " response", Err: err}
	}
	return nil
}

func decodeError(resp *http.Response) *appointment.RemoteError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	re := &appointment.RemoteError{StatusCode: resp.StatusCode}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		re.Message = eb.Error
		if eb.Details != "" {
			re.Message += ": " + eb.Details
		}
		re.SlotUnavailable = resp.StatusCode == http.StatusConflict && eb.Error == "slot_taken"
	} else {
		re.Message = strings.TrimSpace(string(raw))
		if re.Message == "" {
			re.Message = http.StatusText(resp.StatusCode)
		}
	}
	return re
}

// -- Directory --

func (c *Client) FetchClinics(ctx context.Context) ([]appointment.Clinic, error) {
	var out []appointment.Clinic
	if err := c.do(ctx, "fetch_clinics", http.MethodGet, "/clinics", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchPractitioners(ctx context.Context, clinicID string) ([]appointment.Practitioner, error) {
	q := url.Values{}
	if clinicID != "" {
		q.Set("clinic_id", clinicID)
	}
	var out []appointment.Practitioner
	if err := c.do(ctx, "fetch_practitioners", http.MethodGet, "/practitioners", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPractitioner(ctx context.Context, id string) (*appointment.Practitioner, error) {
	var out appointment.Practitioner
	if err := c.do(ctx, "get_practitioner", http.MethodGet, "/practitioners/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchPets(ctx context.Context, ownerID string) ([]record.Pet, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}
	var out []record.Pet
	if err := c.do(ctx, "fetch_pets", http.MethodGet, "/pets", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPet(ctx context.Context, id string) (*record.Pet, error) {
	var out record.Pet
	if err := c.do(ctx, "get_pet", http.MethodGet, "/pets/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -- Slots --

func (c *Client) FetchSlots(ctx context.Context, clinicID string, date time.Time) ([]appointment.Slot, error) {
	q := url.Values{}
	q.Set("date", date.Format(time.DateOnly))
	var out []appointment.Slot
	path := "/clinics/" + url.PathEscape(clinicID) + "/slots"
	if err := c.do(ctx, "fetch_slots", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []appointment.Slot{}
	}
	return out, nil
}

// -- Appointments --

func (c *Client) GetAppointment(ctx context.Context, id string) (*appointment.Appointment, error) {
	var out appointment.Appointment
	if err := c.do(ctx, "get_appointment", http.MethodGet, "/appointments/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	var out appointment.Appointment
	if err := c.do(ctx, "create_appointment", http.MethodPost, "/appointments", nil, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id string, p appointment.Patch) (*appointment.Appointment, error) {
	var out appointment.Appointment
	if err := c.do(ctx, "update_appointment", http.MethodPatch, "/appointments/"+url.PathEscape(id), nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.do(ctx, "delete_appointment", http.MethodDelete, "/appointments/"+url.PathEscape(id), nil, nil, nil)
}

type statusBody struct {
	Status appointment.Status `json:"status"`
}

func (c *Client) TransitionAppointment(ctx context.Context, id string, to appointment.Status) (*appointment.Appointment, error) {
	var out appointment.Appointment
	path := "/appointments/" + url.PathEscape(id) + "/status"
	if err := c.do(ctx, "transition_appointment", http.MethodPost, path, nil, statusBody{Status: to}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -- Clinical records --

func (c *Client) CreateRecord(ctx context.Context, r record.ClinicalRecord) (*record.ClinicalRecord, error) {
	var out record.ClinicalRecord
	if err := c.do(ctx, "create_record", http.MethodPost, "/records", nil, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRecord(ctx context.Context, id string, r record.ClinicalRecord) (*record.ClinicalRecord, error) {
	var out record.ClinicalRecord
	if err := c.do(ctx, "update_record", http.MethodPatch, "/records/"+url.PathEscape(id), nil, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.do(ctx, "delete_record", http.MethodDelete, "/records/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListRecords(ctx context.Context, petID string) ([]record.ClinicalRecord, error) {
	q := url.Values{}
	if petID != "" {
		q.Set("pet_id", petID)
	}
	var out []record.ClinicalRecord
	if err := c.do(ctx, "list_records", http.MethodGet, "/records", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// -- Session --

func (c *Client) CurrentUser(ctx context.Context) (*appointment.Actor, error) {
	var out appointment.Actor
	if err := c.do(ctx, "current_user", http.MethodGet, "/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks the clinic API is reachable; used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/clinics", nil, nil, nil)
}
