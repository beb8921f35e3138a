package front

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokicard/waitlist/internal/config"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/password"
	"github.com/tokicard/waitlist/internal/quests"
	"github.com/tokicard/waitlist/internal/ratelimit"
	"github.com/tokicard/waitlist/internal/testhelpers"
	"github.com/tokicard/waitlist/internal/waitlist"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := testhelpers.OpenTestDB(t)

	mailer := mail.LogMailer{}
	waitlistSvc := waitlist.NewService(conn, mailer, waitlist.Config{
		OTPValidity: 10 * time.Minute,
		JWTSecret:   "test-secret",
		JWTExpiry:   time.Hour,
	})
	passwordSvc := password.NewService(conn, mailer, password.Config{
		ResetValidity:  time.Hour,
		FrontendOrigin: "http://localhost:3000",
	})

	engine := gin.New()
	RegisterFrontRoutes(engine, Deps{
		WaitlistSvc: waitlistSvc,
		PasswordSvc: passwordSvc,
		QuestSvc:    quests.NewService(conn),
		Limiter:     ratelimit.NewMemoryLimiter(),
		JWTSecret:   "test-secret",
		Verification: config.VerificationConfig{
			OTPValidity:   10 * time.Minute,
			ResetValidity: time.Hour,
			ResendLimit:   2,
			ResendWindow:  time.Minute,
		},
		Production: false,
	})
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	out := map[string]any{}
	if recorder.Body.Len() > 0 {
		if errDecode := json.Unmarshal(recorder.Body.Bytes(), &out); errDecode != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), errDecode)
		}
	}
	return recorder.Code, out
}

func TestSignupFlow(t *testing.T) {
	engine := newTestRouter(t)

	status, submitted := doJSON(t, engine, http.MethodPost, "/waitlist", "", gin.H{
		"fullname": "Jane Doe",
		"email":    "jane@example.com",
		"phone":    "+6590000000",
		"password": "hunter2hunter2",
	})
	if status != http.StatusOK {
		t.Fatalf("submit status = %d, body %v", status, submitted)
	}
	otp, _ := submitted["debugOtp"].(string)
	verificationID, _ := submitted["verificationId"].(string)
	if otp == "" || verificationID == "" {
		t.Fatalf("missing debug otp or verification id: %v", submitted)
	}

	status, verified := doJSON(t, engine, http.MethodPost, "/verify-otp", "", gin.H{
		"email":          "jane@example.com",
		"otp":            otp,
		"verificationId": verificationID,
	})
	if status != http.StatusOK {
		t.Fatalf("verify status = %d, body %v", status, verified)
	}
	token, _ := verified["token"].(string)
	if token == "" {
		t.Fatalf("missing session token: %v", verified)
	}

	status, me := doJSON(t, engine, http.MethodGet, "/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me status = %d, body %v", status, me)
	}

	status, questList := doJSON(t, engine, http.MethodGet, "/quests", token, nil)
	if status != http.StatusOK {
		t.Fatalf("quests status = %d, body %v", status, questList)
	}
	listed, _ := questList["quests"].([]any)
	if len(listed) != 3 {
		t.Fatalf("quest count = %d, want 3", len(listed))
	}

	status, completed := doJSON(t, engine, http.MethodPost, "/quests/follow-x/complete", token, nil)
	if status != http.StatusOK {
		t.Fatalf("complete status = %d, body %v", status, completed)
	}
	if awarded, _ := completed["pointsAwarded"].(float64); awarded != 50 {
		t.Fatalf("pointsAwarded = %v, want 50", completed["pointsAwarded"])
	}
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	engine := newTestRouter(t)

	_, submitted := doJSON(t, engine, http.MethodPost, "/waitlist", "", gin.H{
		"fullname": "Jane Doe",
		"email":    "jane@example.com",
		"phone":    "+6590000000",
		"password": "hunter2hunter2",
	})
	otp, _ := submitted["debugOtp"].(string)
	verificationID, _ := submitted["verificationId"].(string)

	wrong := "000000"
	if wrong == otp {
		wrong = "000001"
	}
	status, body := doJSON(t, engine, http.MethodPost, "/verify-otp", "", gin.H{
		"email":          "jane@example.com",
		"otp":            wrong,
		"verificationId": verificationID,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["error"] != "Incorrect OTP. Please try again." {
		t.Fatalf("error message = %v", body["error"])
	}
}

func TestResendOTP_Throttled(t *testing.T) {
	engine := newTestRouter(t)

	doJSON(t, engine, http.MethodPost, "/waitlist", "", gin.H{
		"fullname": "Jane Doe",
		"email":    "jane@example.com",
		"phone":    "+6590000000",
		"password": "hunter2hunter2",
	})

	for i := 0; i < 2; i++ {
		status, body := doJSON(t, engine, http.MethodPost, "/resend-otp", "", gin.H{"email": "jane@example.com"})
		if status != http.StatusOK {
			t.Fatalf("resend %d status = %d, body %v", i, status, body)
		}
	}
	status, body := doJSON(t, engine, http.MethodPost, "/resend-otp", "", gin.H{"email": "jane@example.com"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, body %v", status, body)
	}
}

func TestForgotPassword_GenericResponse(t *testing.T) {
	engine := newTestRouter(t)

	status, body := doJSON(t, engine, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "ghost@example.com"})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["message"] != password.GenericResetMessage {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestAuthedRoutes_RejectMissingToken(t *testing.T) {
	engine := newTestRouter(t)

	for _, path := range []string{"/auth/me", "/auth/referrals", "/quests"} {
		status, _ := doJSON(t, engine, http.MethodGet, path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, status)
		}
	}
	status, _ := doJSON(t, engine, http.MethodGet, "/auth/me", "garbage-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", status)
	}
}
