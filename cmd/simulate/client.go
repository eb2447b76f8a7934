package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hackgods/doctor-scheduling/internal/api"
	"github.com/hackgods/doctor-scheduling/internal/directory"
)

type slotTarget struct {
	DoctorID         string
	Date             string
	SlotID           string
	ConsultationType string
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, c *http.Client) *apiClient {
	return &apiClient{base: base, http: c}
}

// openSlots lists currently open slots of the top doctors.
func (c *apiClient) openSlots(ctx context.Context, limit int) ([]slotTarget, error) {
	var resp api.DoctorSearchResponse
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/doctors?limit=%d", limit), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search doctors: status %d", status)
	}

	var out []slotTarget
	for _, d := range resp.Doctors {
		consult := string(directory.ConsultInPerson)
		if len(d.ConsultationTypes) > 0 {
			consult = string(d.ConsultationTypes[0])
		}
		for _, w := range d.Availability {
			for _, s := range w.Slots {
				if s.Status == directory.SlotOpen {
					out = append(out, slotTarget{DoctorID: d.ID, Date: w.Date, SlotID: s.ID, ConsultationType: consult})
				}
			}
		}
	}
	return out, nil
}

func (c *apiClient) book(ctx context.Context, slot slotTarget, patient string) (string, int, error) {
	var resp api.AppointmentResponse
	status, err := c.do(ctx, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		DoctorID:         slot.DoctorID,
		Date:             slot.Date,
		SlotID:           slot.SlotID,
		ConsultationType: slot.ConsultationType,
		PatientID:        patient,
	}, &resp)
	return resp.ID.String(), status, err
}

func (c *apiClient) reschedule(ctx context.Context, id string, target slotTarget) (string, int, error) {
	var resp api.AppointmentResponse
	status, err := c.do(ctx, http.MethodPost, "/appointments/"+id+"/reschedule", api.RescheduleAppointmentRequest{
		NewDate:   target.Date,
		NewSlotID: target.SlotID,
	}, &resp)
	return resp.ID.String(), status, err
}

func (c *apiClient) post(ctx context.Context, path string, body any) (int, error) {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *apiClient) get(ctx context.Context, path string) (int, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// do sends body as JSON and decodes 2xx responses into out when non-nil.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
