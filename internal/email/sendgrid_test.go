package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("test-api-key", WithEndpoint(server.URL))
}

func TestClient_Send_Success(t *testing.T) {
	var gotAuth string
	var gotReq sendRequest

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusAccepted)
	}))

	msg := Message{
		Subject:    "Daily Product Validation Report - 2024-01-15",
		Content:    "Total Products Checked: 1200\nProducts with Issues: 3",
		Sender:     "reports@kitchenartsandletters.com",
		Recipients: []string{"gil@kitchenartsandletters.com"},
	}

	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotAuth != "Bearer test-api-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReq.From.Email != "reports@kitchenartsandletters.com" {
		t.Errorf("from = %q", gotReq.From.Email)
	}
	if len(gotReq.Personalizations) != 1 || len(gotReq.Personalizations[0].To) != 1 {
		t.Fatalf("personalizations = %+v", gotReq.Personalizations)
	}
	if got := gotReq.Personalizations[0].To[0].Email; got != "gil@kitchenartsandletters.com" {
		t.Errorf("recipient = %q", got)
	}
	if len(gotReq.Content) != 1 || gotReq.Content[0].Type != "text/plain" {
		t.Errorf("content = %+v", gotReq.Content)
	}
}

func TestClient_Send_MultipleRecipients(t *testing.T) {
	var gotReq sendRequest

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusAccepted)
	}))

	msg := Message{
		Subject:    "Report",
		Content:    "body",
		Sender:     "reports@kitchenartsandletters.com",
		Recipients: []string{"a@example.com", "b@example.com"},
	}

	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(gotReq.Personalizations[0].To) != 2 {
		t.Errorf("recipients = %+v", gotReq.Personalizations[0].To)
	}
}

func TestClient_Send_AttachesCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "validation_report_20240115_140000.csv")
	csvContent := "Product Title,Product ID,Issue Type,Issue Description,Details\n"
	if err := os.WriteFile(csvPath, []byte(csvContent), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotReq sendRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusAccepted)
	}))

	msg := Message{
		Subject:    "Report",
		Content:    "body",
		Sender:     "reports@kitchenartsandletters.com",
		Recipients: []string{"gil@kitchenartsandletters.com"},
		Attachments: []Attachment{{
			Filename: "validation_report_20240115_140000.csv",
			Path:     csvPath,
		}},
	}

	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(gotReq.Attachments) != 1 {
		t.Fatalf("attachments = %+v", gotReq.Attachments)
	}
	att := gotReq.Attachments[0]
	if att.Filename != "validation_report_20240115_140000.csv" {
		t.Errorf("filename = %q", att.Filename)
	}
	if att.Type != "text/csv" {
		t.Errorf("type = %q", att.Type)
	}
	if att.Disposition != "attachment" {
		t.Errorf("disposition = %q", att.Disposition)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Content)
	if err != nil {
		t.Fatalf("attachment content not base64: %v", err)
	}
	if string(decoded) != csvContent {
		t.Errorf("attachment content = %q", decoded)
	}
}

func TestClient_Send_MissingAttachmentFile(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when attachment is unreadable")
	}))

	msg := Message{
		Subject:     "Report",
		Content:     "body",
		Sender:      "reports@kitchenartsandletters.com",
		Recipients:  []string{"gil@kitchenartsandletters.com"},
		Attachments: []Attachment{{Filename: "missing.csv", Path: "/nonexistent/missing.csv"}},
	}

	if err := client.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error for unreadable attachment")
	}
}

func TestClient_Send_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	msg := Message{
		Subject:    "Report",
		Content:    "body",
		Sender:     "reports@kitchenartsandletters.com",
		Recipients: []string{"gil@kitchenartsandletters.com"},
	}

	if err := client.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestClient_Send_RequiresRecipientsAndSender(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	if err := client.Send(context.Background(), Message{Sender: "a@example.com"}); err == nil {
		t.Error("expected error for missing recipients")
	}
	if err := client.Send(context.Background(), Message{Recipients: []string{"a@example.com"}}); err == nil {
		t.Error("expected error for missing sender")
	}
}

type recordingMetrics struct {
	outcomes []string
}

func (m *recordingMetrics) EmailSendCompleted(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func TestClient_Send_RecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	m := &recordingMetrics{}
	client := New("key", WithEndpoint(server.URL), WithMetrics(m))

	msg := Message{
		Subject:    "Report",
		Content:    "body",
		Sender:     "reports@kitchenartsandletters.com",
		Recipients: []string{"gil@kitchenartsandletters.com"},
	}
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "succeeded" {
		t.Errorf("outcomes = %v", m.outcomes)
	}
}
