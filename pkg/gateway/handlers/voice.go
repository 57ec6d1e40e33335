package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/voxbridge/voxbridge/pkg/gateway/apierror"
	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/mw"
)

// twimlResponse is the carrier instruction document: connect the call to
// our media-stream WebSocket.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// VoiceHandler answers the carrier's inbound-call webhook with TwiML
// pointing the call at the media-stream endpoint.
type VoiceHandler struct {
	Config config.Config
	Logger *slog.Logger
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "method not allowed",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxFormBytes)
	if err := r.ParseForm(); err != nil {
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "malformed webhook form",
		})
		return
	}

	if h.Config.SignatureValidationEnabled() {
		sig := r.Header.Get("X-Twilio-Signature")
		if !validSignature(h.Config.TwilioAuthToken, h.Config.VoiceCallbackURL(), r.PostForm, sig) {
			logger.Warn("webhook signature rejected", "request_id", reqID, "call_sid", r.PostFormValue("CallSid"))
			apierror.Write(w, reqID, &apierror.Error{
				Type:    apierror.ErrAuthentication,
				Message: "invalid webhook signature",
				Param:   "X-Twilio-Signature",
			})
			return
		}
	}

	logger.Info("inbound call",
		"request_id", reqID,
		"call_sid", r.PostFormValue("CallSid"),
		"from", r.PostFormValue("From"),
	)

	doc := twimlResponse{Connect: twimlConnect{Stream: twimlStream{URL: h.Config.MediaStreamURL()}}}
	out, err := xml.Marshal(doc)
	if err != nil {
		apierror.Write(w, reqID, &apierror.Error{Type: apierror.ErrInternal, Message: "internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// validSignature checks the carrier's HMAC-SHA1 scheme: the callback URL
// concatenated with every form key and value in key-sorted order, signed
// with the account auth token.
func validSignature(token, callbackURL string, form map[string][]string, signature string) bool {
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
