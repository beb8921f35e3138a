package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/codes"
	"github.com/tokicard/waitlist/internal/mail"
	"github.com/tokicard/waitlist/internal/models"
	"github.com/tokicard/waitlist/internal/testhelpers"
)

// fakeMailer records outbound mail and can be told to fail.
type fakeMailer struct {
	otps  []string
	links []string
	fail  bool
}

func (m *fakeMailer) SendOTP(_ context.Context, _ string, otp string, _ time.Time) error {
	if m.fail {
		return mail.ErrDelivery
	}
	m.otps = append(m.otps, otp)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _ string, link string, _ time.Time) error {
	if m.fail {
		return mail.ErrDelivery
	}
	m.links = append(m.links, link)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeMailer, *gorm.DB) {
	t.Helper()
	conn := testhelpers.OpenTestDB(t)
	mailer := &fakeMailer{}
	svc := NewService(conn, mailer, Config{
		OTPValidity: 10 * time.Minute,
		JWTSecret:   "test-secret",
		JWTExpiry:   time.Hour,
	})
	return svc, mailer, conn
}

func submitParams(email string) SubmitParams {
	return SubmitParams{
		FullName: "Jane Doe",
		Email:    email,
		Phone:    "+6590000000",
		Password: "hunter2hunter2",
	}
}

func TestSubmitAndVerify(t *testing.T) {
	svc, mailer, conn := newTestService(t)
	ctx := context.Background()

	submitted, errSubmit := svc.Submit(ctx, submitParams("Jane@Example.com"))
	if errSubmit != nil {
		t.Fatalf("Submit: %v", errSubmit)
	}
	if submitted.AlreadyVerified {
		t.Fatalf("fresh signup reported as verified")
	}
	if submitted.VerificationID == "" || submitted.OTP == "" {
		t.Fatalf("missing verification handle: %+v", submitted)
	}
	if len(mailer.otps) != 1 || mailer.otps[0] != submitted.OTP {
		t.Fatalf("otp not dispatched: %v", mailer.otps)
	}

	var entry models.WaitlistEntry
	if errFind := conn.First(&entry).Error; errFind != nil {
		t.Fatalf("find entry: %v", errFind)
	}
	if entry.Status != models.WaitlistStatusPending {
		t.Fatalf("entry status = %q, want pending", entry.Status)
	}

	verified, errVerify := svc.Verify(ctx, "jane@example.com", submitted.OTP, submitted.VerificationID)
	if errVerify != nil {
		t.Fatalf("Verify: %v", errVerify)
	}
	if verified.Token == "" {
		t.Fatalf("expected session token")
	}
	if !verified.User.IsVerified {
		t.Fatalf("user payload not verified: %+v", verified.User)
	}
	if verified.ReferralReward != nil {
		t.Fatalf("unexpected referral reward without referrer")
	}

	if errFind := conn.First(&entry).Error; errFind != nil {
		t.Fatalf("reload entry: %v", errFind)
	}
	if entry.Status != models.WaitlistStatusVerified {
		t.Fatalf("entry status = %q, want verified", entry.Status)
	}
}

func TestVerify_WrongOTP(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	submitted, errSubmit := svc.Submit(ctx, submitParams("jane@example.com"))
	if errSubmit != nil {
		t.Fatalf("Submit: %v", errSubmit)
	}

	wrong := "000000"
	if wrong == submitted.OTP {
		wrong = "000001"
	}
	if _, errVerify := svc.Verify(ctx, "jane@example.com", wrong, submitted.VerificationID); !errors.Is(errVerify, codes.ErrInvalidSecret) {
		t.Fatalf("verify = %v, want ErrInvalidSecret", errVerify)
	}

	// The correct OTP still works after a failed guess.
	if _, errVerify := svc.Verify(ctx, "jane@example.com", submitted.OTP, submitted.VerificationID); errVerify != nil {
		t.Fatalf("verify after failed guess: %v", errVerify)
	}
}

func TestVerify_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, errVerify := svc.Verify(context.Background(), "ghost@example.com", "123456", "some-id"); !errors.Is(errVerify, ErrUserNotFound) {
		t.Fatalf("verify = %v, want ErrUserNotFound", errVerify)
	}
}

func TestSubmit_AlreadyVerifiedShortCircuits(t *testing.T) {
	svc, mailer, _ := newTestService(t)
	ctx := context.Background()

	submitted, _ := svc.Submit(ctx, submitParams("jane@example.com"))
	if _, errVerify := svc.Verify(ctx, "jane@example.com", submitted.OTP, submitted.VerificationID); errVerify != nil {
		t.Fatalf("Verify: %v", errVerify)
	}
	sent := len(mailer.otps)

	again, errAgain := svc.Submit(ctx, submitParams("jane@example.com"))
	if errAgain != nil {
		t.Fatalf("Submit again: %v", errAgain)
	}
	if !again.AlreadyVerified {
		t.Fatalf("expected AlreadyVerified short circuit")
	}
	if len(mailer.otps) != sent {
		t.Fatalf("short circuit must not send mail")
	}
}

func TestSubmit_ResubmissionOverwritesProfile(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	if _, errSubmit := svc.Submit(ctx, submitParams("jane@example.com")); errSubmit != nil {
		t.Fatalf("Submit: %v", errSubmit)
	}
	var first models.User
	if errFind := conn.Where("email = ?", "jane@example.com").First(&first).Error; errFind != nil {
		t.Fatalf("find user: %v", errFind)
	}

	params := submitParams("jane@example.com")
	params.FullName = "Jane D. Updated"
	params.Phone = "+6591111111"
	if _, errSubmit := svc.Submit(ctx, params); errSubmit != nil {
		t.Fatalf("Submit again: %v", errSubmit)
	}

	var second models.User
	if errFind := conn.Where("email = ?", "jane@example.com").First(&second).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if second.ID != first.ID {
		t.Fatalf("resubmission created a new row")
	}
	if second.FullName != "Jane D. Updated" || second.Phone != "+6591111111" {
		t.Fatalf("profile not overwritten: %+v", second)
	}
	if second.ReferralCode != first.ReferralCode {
		t.Fatalf("referral code must be stable across resubmission")
	}
}

func TestSubmit_DeliveryFailureRollsBack(t *testing.T) {
	svc, mailer, conn := newTestService(t)
	mailer.fail = true

	if _, errSubmit := svc.Submit(context.Background(), submitParams("jane@example.com")); !errors.Is(errSubmit, mail.ErrDelivery) {
		t.Fatalf("submit = %v, want ErrDelivery", errSubmit)
	}

	var count int64
	if errCount := conn.Model(&models.User{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count users: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("user row survived a failed delivery")
	}
}

func TestVerify_ReferralCreditExactlyOnce(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	referrerSubmit, _ := svc.Submit(ctx, submitParams("referrer@example.com"))
	if _, errVerify := svc.Verify(ctx, "referrer@example.com", referrerSubmit.OTP, referrerSubmit.VerificationID); errVerify != nil {
		t.Fatalf("verify referrer: %v", errVerify)
	}
	var referrer models.User
	if errFind := conn.Where("email = ?", "referrer@example.com").First(&referrer).Error; errFind != nil {
		t.Fatalf("find referrer: %v", errFind)
	}

	params := submitParams("friend@example.com")
	params.ReferralCode = referrer.ReferralCode
	friendSubmit, errSubmit := svc.Submit(ctx, params)
	if errSubmit != nil {
		t.Fatalf("submit friend: %v", errSubmit)
	}

	verified, errVerify := svc.Verify(ctx, "friend@example.com", friendSubmit.OTP, friendSubmit.VerificationID)
	if errVerify != nil {
		t.Fatalf("verify friend: %v", errVerify)
	}
	if verified.ReferralReward == nil {
		t.Fatalf("expected referral reward")
	}
	if verified.ReferralReward.PointsAwarded != ReferralRewardPoints {
		t.Fatalf("reward = %d, want %d", verified.ReferralReward.PointsAwarded, ReferralRewardPoints)
	}

	if errFind := conn.First(&referrer, referrer.ID).Error; errFind != nil {
		t.Fatalf("reload referrer: %v", errFind)
	}
	if referrer.Points != ReferralRewardPoints {
		t.Fatalf("referrer points = %d, want %d", referrer.Points, ReferralRewardPoints)
	}

	// A fresh OTP for the already-verified friend must not pay out again.
	resent, errResend := svc.Resend(ctx, "friend@example.com")
	if errResend != nil {
		t.Fatalf("Resend: %v", errResend)
	}
	reverified, errVerify := svc.Verify(ctx, "friend@example.com", resent.OTP, resent.VerificationID)
	if errVerify != nil {
		t.Fatalf("re-verify friend: %v", errVerify)
	}
	if reverified.ReferralReward != nil {
		t.Fatalf("re-verification must not credit the referrer again")
	}
	if errFind := conn.First(&referrer, referrer.ID).Error; errFind != nil {
		t.Fatalf("reload referrer: %v", errFind)
	}
	if referrer.Points != ReferralRewardPoints {
		t.Fatalf("referrer points after re-verify = %d, want %d", referrer.Points, ReferralRewardPoints)
	}
}

func TestVerify_ConcurrentAttemptsConsumeOnce(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	// One connection makes the two transactions queue on the pool, so
	// the loser always observes the winner's committed consumption.
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)

	submitted, errSubmit := svc.Submit(ctx, submitParams("jane@example.com"))
	if errSubmit != nil {
		t.Fatalf("Submit: %v", errSubmit)
	}

	start := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, errVerify := svc.Verify(ctx, "jane@example.com", submitted.OTP, submitted.VerificationID)
			results <- errVerify
		}()
	}
	close(start)

	var successes, consumed int
	for i := 0; i < 2; i++ {
		errVerify := <-results
		switch {
		case errVerify == nil:
			successes++
		case errors.Is(errVerify, codes.ErrConsumed):
			consumed++
		default:
			t.Fatalf("unexpected verify error: %v", errVerify)
		}
	}
	if successes != 1 || consumed != 1 {
		t.Fatalf("successes = %d, consumed = %d, want exactly one of each", successes, consumed)
	}

	var user models.User
	if errFind := conn.Where("email = ?", "jane@example.com").First(&user).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if !user.IsVerified {
		t.Fatalf("user not verified after the winning attempt")
	}
}

func TestSubmit_UnknownReferralCodeIgnored(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	params := submitParams("jane@example.com")
	params.ReferralCode = "nobody-000000"
	if _, errSubmit := svc.Submit(ctx, params); errSubmit != nil {
		t.Fatalf("Submit: %v", errSubmit)
	}

	var user models.User
	if errFind := conn.Where("email = ?", "jane@example.com").First(&user).Error; errFind != nil {
		t.Fatalf("find user: %v", errFind)
	}
	if user.ReferredBy != nil {
		t.Fatalf("unknown code must not attach a referrer")
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	submitted, _ := svc.Submit(ctx, submitParams("jane@example.com"))

	if _, _, errAuth := svc.Authenticate(ctx, "jane@example.com", "hunter2hunter2"); !errors.Is(errAuth, ErrNotVerified) {
		t.Fatalf("pre-verification login = %v, want ErrNotVerified", errAuth)
	}

	if _, errVerify := svc.Verify(ctx, "jane@example.com", submitted.OTP, submitted.VerificationID); errVerify != nil {
		t.Fatalf("Verify: %v", errVerify)
	}

	token, user, errAuth := svc.Authenticate(ctx, "Jane@Example.com", "hunter2hunter2")
	if errAuth != nil {
		t.Fatalf("Authenticate: %v", errAuth)
	}
	if token == "" || user.Email != "jane@example.com" {
		t.Fatalf("unexpected login result: %q %+v", token, user)
	}

	if _, _, errAuth := svc.Authenticate(ctx, "jane@example.com", "wrong-password"); !errors.Is(errAuth, ErrInvalidCredentials) {
		t.Fatalf("bad password = %v, want ErrInvalidCredentials", errAuth)
	}
	if _, _, errAuth := svc.Authenticate(ctx, "ghost@example.com", "whatever"); !errors.Is(errAuth, ErrInvalidCredentials) {
		t.Fatalf("unknown email = %v, want ErrInvalidCredentials", errAuth)
	}
}

func TestListReferrals(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	ownerSubmit, _ := svc.Submit(ctx, submitParams("owner@example.com"))
	if _, errVerify := svc.Verify(ctx, "owner@example.com", ownerSubmit.OTP, ownerSubmit.VerificationID); errVerify != nil {
		t.Fatalf("verify owner: %v", errVerify)
	}
	var owner models.User
	if errFind := conn.Where("email = ?", "owner@example.com").First(&owner).Error; errFind != nil {
		t.Fatalf("find owner: %v", errFind)
	}

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		params := submitParams(email)
		params.ReferralCode = owner.ReferralCode
		if _, errSubmit := svc.Submit(ctx, params); errSubmit != nil {
			t.Fatalf("submit %s: %v", email, errSubmit)
		}
	}

	page, errList := svc.ListReferrals(ctx, owner.ID, 1, 2)
	if errList != nil {
		t.Fatalf("ListReferrals: %v", errList)
	}
	if page.Total != 3 || len(page.Referrals) != 2 || !page.HasMore {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page.ReferralCode != owner.ReferralCode {
		t.Fatalf("page referral code = %q", page.ReferralCode)
	}

	last, errLast := svc.ListReferrals(ctx, owner.ID, 2, 2)
	if errLast != nil {
		t.Fatalf("ListReferrals page 2: %v", errLast)
	}
	if len(last.Referrals) != 1 || last.HasMore {
		t.Fatalf("unexpected last page: %+v", last)
	}
}
