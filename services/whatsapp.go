package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// waGraphAPI is a var so tests can point the client at a stub server.
var waGraphAPI = "https://graph.facebook.com/v18.0"

// waTextPayload is the Cloud API text-message request body.
type waTextPayload struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             waTextBody `json:"text"`
}

type waTextBody struct {
	Body string `json:"body"`
}

// waSendResponse is the Cloud API response for a sent message.
type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendWhatsAppReply sends a text reply through the WhatsApp Cloud API and
// returns the provider message id. One retry on failure; a send that still
// fails is reported to the caller but must never block persistence.
func SendWhatsAppReply(ctx context.Context, phoneNumberID, accessToken, to, message string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		providerID, err := doSendWhatsApp(ctx, phoneNumberID, accessToken, to, message)
		if err == nil {
			return providerID, nil
		}
		lastErr = err

		slog.Warn("WhatsApp send attempt failed",
			"attempt", attempt+1,
			"to", to,
			"error", err)
	}

	return "", lastErr
}

func doSendWhatsApp(ctx context.Context, phoneNumberID, accessToken, to, message string) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", waGraphAPI, phoneNumberID)

	payload := waTextPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             waTextBody{Body: message},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Failed to send WhatsApp reply", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("failed to send message: %s", resp.Status)
	}

	var sendResp waSendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		return "", err
	}

	if len(sendResp.Messages) == 0 {
		return "", fmt.Errorf("no message id in send response")
	}

	return sendResp.Messages[0].ID, nil
}

// MarkWhatsAppRead marks an inbound message as read so the customer sees the
// blue check. Failures are logged and swallowed.
func MarkWhatsAppRead(ctx context.Context, phoneNumberID, accessToken, messageID string) {
	url := fmt.Sprintf("%s/%s/messages", waGraphAPI, phoneNumberID)

	payload := map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("Failed to mark message as read", "messageID", messageID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Warn("Failed to mark message as read", "status", resp.StatusCode, "body", string(body))
	}
}
