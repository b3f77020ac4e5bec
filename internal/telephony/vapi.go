package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cart-dialer/internal/calls"
)

const defaultVapiBaseURL = "https://api.vapi.ai"

// VapiCaller places calls through Vapi's POST /call endpoint.
type VapiCaller struct {
	baseURL       string
	apiKey        string
	phoneNumberID string
	assistantID   string
	httpClient    *http.Client
}

type VapiConfig struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	AssistantID   string
	HTTPClient    *http.Client
}

func NewVapiCaller(cfg VapiConfig) (*VapiCaller, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("telephony: vapi api key is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("telephony: vapi phone number id is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultVapiBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// No client timeout: the dispatch context carries the call deadline.
		hc = &http.Client{}
	}
	return &VapiCaller{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		phoneNumberID: cfg.PhoneNumberID,
		assistantID:   cfg.AssistantID,
		httpClient:    hc,
	}, nil
}

func (v *VapiCaller) Name() string { return "vapi" }

type vapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type vapiOverrides struct {
	FirstMessage   string            `json:"firstMessage,omitempty"`
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

type vapiCallBody struct {
	AssistantID        string         `json:"assistantId,omitempty"`
	PhoneNumberID      string         `json:"phoneNumberId"`
	Customer           vapiCustomer   `json:"customer"`
	AssistantOverrides *vapiOverrides `json:"assistantOverrides,omitempty"`
}

type vapiCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (v *VapiCaller) PlaceCall(ctx context.Context, req calls.CallRequest) (string, error) {
	assistant := req.AssistantID
	if assistant == "" {
		assistant = v.assistantID
	}
	body, err := json.Marshal(vapiCallBody{
		AssistantID:   assistant,
		PhoneNumberID: v.phoneNumberID,
		Customer:      vapiCustomer{Number: req.To, Name: req.CustomerName},
		AssistantOverrides: &vapiOverrides{
			FirstMessage:   req.FirstMessage,
			VariableValues: req.Variables,
		},
	})
	if err != nil {
		return "", &DispatchError{Provider: v.Name(), Code: CodeProvider, Err: fmt.Errorf("marshal call body: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", &DispatchError{Provider: v.Name(), Code: CodeProvider, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+v.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(v.Name(), err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(v.Name(), resp.StatusCode, data)
	}
	var parsed vapiCallResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &DispatchError{Provider: v.Name(), Code: CodeProvider, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.ID == "" {
		return "", &DispatchError{Provider: v.Name(), Code: CodeProvider, Status: resp.StatusCode, Err: errors.New("response carried no call id")}
	}
	return parsed.ID, nil
}
