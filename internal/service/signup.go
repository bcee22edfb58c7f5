package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/ratelimit"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/session"
	"github.com/sakif/accountkeeper/internal/validate"
)

// SignupRequest is the input of both signup paths.
type SignupRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Captcha  string `json:"captcha"`
}

func newSignupCode() string {
	return uuid.NewString()
}

// Initiate stages a new account (NONE → PENDING) and sends the
// confirmation link. The response never says whether the email address is
// already in use; only a taken user name is reported.
func (s *AccountService) Initiate(ctx context.Context, sc *session.Context, req SignupRequest, clientIP string) (*model.MessageResult, error) {
	res, err := s.initiate(ctx, sc, req, clientIP)
	s.metrics.ObserveErr(metrics.FlowSignup, err, isUserFailure)
	if err != nil {
		return nil, fmt.Errorf("service/signup: %w", err)
	}
	return res, nil
}

func (s *AccountService) initiate(ctx context.Context, sc *session.Context, req SignupRequest, clientIP string) (*model.MessageResult, error) {
	if err := validate.Reserved(req.UserName, s.opts.ReservedNames); err != nil {
		return nil, err
	}
	if err := checkSignupInput(req); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(ctx, ratelimit.ActionSignup, req.UserName, clientIP); err != nil {
		return nil, err
	}
	if s.opts.RequireCaptcha && !sc.CheckCaptcha(req.Captcha) {
		return nil, apperror.ValidationFailed("captcha", "Wrong captcha text.")
	}

	encrypted, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypting password: %w", err)
	}
	code := s.newCode()

	err = s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		if _, err := st.GetPrincipal(ctx, req.UserName); err == nil {
			return apperror.Conflict("account", req.UserName)
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}

		err := st.CreateNode(ctx, &model.Node{
			Path:      signupPath(req.UserName),
			Owner:     s.opts.AdminName,
			CreatedBy: s.opts.AdminName,
			Properties: model.Properties{
				model.PropUser:              model.String(req.UserName),
				model.PropEncryptedPassword: model.String(encrypted),
				model.PropEmail:             model.String(req.Email),
				model.PropCode:              model.String(code),
			},
		})
		if errors.Is(err, apperror.ErrConflict) {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "User name is already pending signup.",
				Field:   "userName",
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("signup pending confirmation", slog.String("user", req.UserName))

	link := s.opts.PublicURL + "?signupCode=" + code
	s.notify(ctx, req.Email, "Account Signup Confirmation",
		"Confirmation for new account: "+req.UserName+
			"<p>\nGo to this page to complete signup: <br>\n"+link)

	return &model.MessageResult{
		Success: true,
		Message: "Signup started. Check your email for a confirmation link.",
	}, nil
}

// Confirm redeems a signup code (PENDING → ACTIVE). The pending record is
// consumed in the same commit that activates the account, so a replayed
// code finds nothing and fails like an unknown one.
func (s *AccountService) Confirm(ctx context.Context, code string) (*model.MessageResult, error) {
	res, err := s.confirm(ctx, code)
	s.metrics.ObserveErr(metrics.FlowConfirm, err, isUserFailure)
	if err != nil {
		return nil, fmt.Errorf("service/signup: %w", err)
	}
	return res, nil
}

func (s *AccountService) confirm(ctx context.Context, code string) (*model.MessageResult, error) {
	invalid := apperror.Concealed(apperror.ErrNotFound, msgInvalidSignup)
	if code == "" {
		return nil, invalid
	}

	var (
		userName string
		taken    bool
	)
	err := s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		pending, err := st.FindByProperty(ctx, SignupRoot, model.PropCode, model.String(code))
		if err != nil {
			return err
		}
		if pending == nil {
			return invalid
		}

		userName, _ = pending.StringProp(model.PropUser)
		encrypted, _ := pending.StringProp(model.PropEncryptedPassword)
		email, _ := pending.StringProp(model.PropEmail)

		password, err := s.cipher.Decrypt(encrypted)
		if err != nil {
			return fmt.Errorf("decrypting pending password: %w", err)
		}

		created, err := s.initNewUser(ctx, st, userName, password, email, model.AuthServiceLocal, false)
		if err != nil {
			return err
		}
		// Consumed even when the name was taken since initiation.
		taken = !created

		_, err = st.DeleteSubtree(ctx, pending.Path)
		return err
	})
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperror.Conflict("account", userName)
	}

	s.logger.Info("signup confirmed", slog.String("user", userName))
	return &model.MessageResult{Success: true, Message: "Signup complete. You may now log in."}, nil
}

// CreateAccount is the server-initiated path (NONE → ACTIVE) with no
// pending stage, no captcha and no reserved-name check. It reports false
// if the account already exists.
func (s *AccountService) CreateAccount(ctx context.Context, req SignupRequest) (bool, error) {
	if err := validate.UserName(req.UserName); err != nil {
		return false, err
	}
	if req.Password == "" {
		return false, apperror.ValidationFailed("password", "Password is required.")
	}
	if req.Email != "" {
		if err := validate.Email(req.Email); err != nil {
			return false, err
		}
	}

	var created bool
	err := s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		created, err = s.initNewUser(ctx, st, req.UserName, req.Password, req.Email, model.AuthServiceLocal, true)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("service/signup: creating %s: %w", req.UserName, err)
	}
	if created {
		s.logger.Info("account created", slog.String("user", req.UserName))
	}
	return created, nil
}

func checkSignupInput(req SignupRequest) error {
	if err := validate.UserName(req.UserName); err != nil {
		return err
	}
	if err := validate.Password(req.Password); err != nil {
		return err
	}
	return validate.Email(req.Email)
}
