package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/middleware"
	"github.com/campusgate/gatepass/internal/model"
)

// maxVerifyImage caps the optional biometric snapshot attached to a scan.
const maxVerifyImage = 4 << 20

// gateScanBudget bounds how long one scan may take end to end, including any
// time it spends waiting behind other pending pass mutations in the store's
// write queue. A turnstile scan has to resolve fast enough that a line of
// students doesn't back up behind one slow write.
const gateScanBudget = 3 * time.Second

// handleVerify runs one gate scan. The token is always present; the image
// is optional and only meaningful on a successful consume.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	scanner, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}

	contentType := r.Header.Get("Content-Type")
	var rawToken string
	var image []byte

	if strings.Contains(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxVerifyImage); err != nil {
			api.PayloadTooLarge(w, "4MB")
			return
		}
		rawToken = r.FormValue("token")
		if file, _, err := r.FormFile("image"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxVerifyImage))
			if err == nil {
				image = data
			}
		}
	} else {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.InvalidJSON(w, "could not parse request body")
			return
		}
		rawToken = body.Token
	}

	if rawToken == "" {
		api.BadRequest(w, "token is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), gateScanBudget)
	defer cancel()

	outcome, err := s.Verifier.Scan(ctx, rawToken, scanner, image)
	if err != nil {
		api.InternalError(w, err)
		return
	}

	if outcome.Result != model.ResultSuccess {
		code := string(outcome.Result)
		if outcome.Detail != "" {
			code += ":" + outcome.Detail
		}
		api.Error(w, http.StatusBadRequest, code, scanDenialMessage(outcome.Result), nil)
		return
	}

	api.Success(w, http.StatusOK, outcome)
}

func scanDenialMessage(result model.ScanResult) string {
	switch result {
	case model.ResultExpired:
		return "token has expired"
	case model.ResultInvalid:
		return "token is invalid"
	case model.ResultReplay:
		return "pass has already been used"
	case model.ResultNotApproved:
		return "pass is not approved"
	case model.ResultDenied:
		return "scan denied"
	default:
		return "scan rejected"
	}
}
