package slackdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap/zaptest"
)

func newBrokerServer(t *testing.T, handle func(action string, req executeRequest) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "broker-key", r.Header.Get("x-api-key"))

		var req executeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ca_123", req.ConnectedAccountID)

		var action string
		switch r.URL.Path {
		case "/actions/" + ActionListChannels + "/execute":
			action = ActionListChannels
		case "/actions/" + ActionFetchHistory + "/execute":
			action = ActionFetchHistory
		default:
			http.NotFound(w, r)
			return
		}
		status, body := handle(action, req)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBrokerListChannels(t *testing.T) {
	srv := newBrokerServer(t, func(action string, req executeRequest) (int, string) {
		assert.Equal(t, ActionListChannels, action)
		assert.EqualValues(t, 2, req.Input["limit"])
		return http.StatusOK, `{"successful": true, "error": null, "data": {"channels": [
			{"id": "C1", "name": "general", "purpose": {"value": "Company-wide"}, "topic": {"value": "Welcome"}},
			{"id": "C2", "name": "eng"},
			{"id": "C3", "name": "random"}
		]}}`
	})

	c := NewBrokerClient(srv.Client(), srv.URL, "broker-key", "ca_123", zaptest.NewLogger(t))
	channels, err := c.ListChannels(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, []models.Channel{
		{ID: "C1", Name: "general", Purpose: "Company-wide", Topic: "Welcome"},
		{ID: "C2", Name: "eng"},
	}, channels)
}

func TestBrokerFetchHistory(t *testing.T) {
	srv := newBrokerServer(t, func(action string, req executeRequest) (int, string) {
		assert.Equal(t, ActionFetchHistory, action)
		assert.Equal(t, "C1", req.Input["channel"])
		assert.Equal(t, "1718000000", req.Input["oldest"])
		assert.Equal(t, "1718600000", req.Input["latest"])
		assert.EqualValues(t, 50, req.Input["limit"])
		return http.StatusOK, `{"successful": true, "data": {"response_data": {"messages": [
			{"type": "message", "text": "deploy is done", "ts": "1718500000.000100", "user": "U1",
			 "attachments": [{"title": "Runbook", "original_url": "https://wiki/runbook"}]},
			{"type": "message", "text": "thanks", "ts": "1718500001.000200"}
		]}}}`
	})

	c := NewBrokerClient(srv.Client(), srv.URL, "broker-key", "ca_123", zaptest.NewLogger(t))
	msgs, err := c.FetchHistory(context.Background(), "C1", models.TimeWindow{Oldest: 1718000000, Latest: 1718600000, Limit: 50})
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, models.Message{
		Text:        "deploy is done",
		TS:          "1718500000.000100",
		User:        "U1",
		Attachments: []models.Attachment{{Title: "Runbook", OriginalURL: "https://wiki/runbook"}},
	}, msgs[0])
	assert.Empty(t, msgs[1].User)
	assert.NotNil(t, msgs[1].Attachments)
}

func TestBrokerErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "http error", status: http.StatusTooManyRequests, body: `{}`, wantErr: "status 429"},
		{name: "unsuccessful action", status: http.StatusOK, body: `{"successful": false, "error": "channel_not_found"}`, wantErr: "channel_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newBrokerServer(t, func(string, executeRequest) (int, string) {
				return tt.status, tt.body
			})
			c := NewBrokerClient(srv.Client(), srv.URL, "broker-key", "ca_123", zaptest.NewLogger(t))

			_, err := c.FetchHistory(context.Background(), "C1", models.TimeWindow{Limit: 50})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBrokerMissingData(t *testing.T) {
	srv := newBrokerServer(t, func(string, executeRequest) (int, string) {
		return http.StatusOK, `{"successful": true, "data": {}}`
	})
	c := NewBrokerClient(srv.Client(), srv.URL, "broker-key", "ca_123", zaptest.NewLogger(t))

	channels, err := c.ListChannels(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestPermalink(t *testing.T) {
	assert.Equal(t, "https://acme.slack.com/archives/C1/p1718500000000100",
		Permalink("https://acme.slack.com/", "C1", "1718500000.000100"))
	assert.Empty(t, Permalink("", "C1", "1718500000.000100"))
}
