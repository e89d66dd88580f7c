// Package client est le client Go des consoles admin et partenaire.
//
// Le serveur fait foi. Le client garde au plus une copie par entité
// (Entity), rafraîchie par sondage ; une copie peut donc avoir jusqu'à un
// intervalle de sondage de retard. Les règles de saisie sont celles de
// internal/validation, vérifiées avant envoi pour épargner un aller-retour.
//
// Aucune requête n'est rejouée automatiquement : approve, reject, admit
// ne sont pas idempotents et un échec exige une nouvelle action explicite.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"billetterie_back_end/internal/apperr"
)

// ErrInFlight : la même action sur la même entité attend encore sa réponse.
var ErrInFlight = errors.New("action déjà en cours sur cette entité")

const requestIDHeader = "X-Request-ID"

type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[string]bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("URL de base invalide: %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		inflight:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// exclusive interdit deux envois simultanés de la même action sur la même
// entité depuis ce client. Rien n'est garanti entre clients distincts.
func (c *Client) exclusive(key string, fn func() error) error {
	c.mu.Lock()
	if c.inflight[key] {
		c.mu.Unlock()
		return ErrInFlight
	}
	c.inflight[key] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()
	return fn()
}

type errorBody struct {
	Error string      `json:"error"`
	Code  apperr.Kind `json:"code"`
}

// doJSON exécute une requête sans retry. Une réponse d'erreur portant un
// code est rendue sous forme de *apperr.Error, comparable par errors.Is.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encodage requête: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("requête http: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lecture réponse: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorBody
		if err := json.Unmarshal(respBody, &e); err == nil && e.Error != "" {
			kind := e.Code
			if kind == "" {
				kind = apperr.KindInternal
			}
			return &apperr.Error{Kind: kind, Message: e.Error}
		}
		return fmt.Errorf("http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("décodage réponse: %w", err)
	}
	return nil
}
