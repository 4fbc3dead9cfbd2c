package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"splitshifts/internal/config"
	"splitshifts/internal/db"
	"splitshifts/internal/domain"
	"splitshifts/internal/email"
	"splitshifts/internal/repository"
	"splitshifts/internal/service"
)

// consoleSender imprime los correos en la terminal en lugar de enviarlos.
type consoleSender struct{}

func (consoleSender) SendMail(_ context.Context, msg email.Message) error {
	fmt.Println("\n----- correo -----")
	fmt.Printf("Para: %s\nAsunto: %s\n\n%s\n", msg.To, msg.Subject, msg.Text)
	fmt.Println("------------------")
	return nil
}

type app struct {
	reader    *bufio.Reader
	users     repository.UserRepository
	jwt       *service.JWTService
	userSvc   *service.UserService
	verifySvc *service.EmailVerificationService
	resetSvc  *service.PasswordResetService
	authSvc   *service.AuthService
	twoFactor *service.TwoFactorService

	session *service.LoginResult
}

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migraciones: %v", err)
	}

	userRepo := repository.NewPgUserRepository(pool)
	sessionRepo := repository.NewPgSessionRepository(pool)
	verifyTokens, err := repository.NewPgTokenRepository(pool, domain.TokenPurposeVerification)
	if err != nil {
		log.Fatal(err)
	}
	resetTokens, err := repository.NewPgTokenRepository(pool, domain.TokenPurposeReset)
	if err != nil {
		log.Fatal(err)
	}

	links, err := service.NewLinkBuilder(cfg.AppBaseURL, false)
	if err != nil {
		log.Fatal(err)
	}
	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		service.NewPgRefreshTokenStore(sessionRepo),
	)
	hasher := service.NewBcryptHasher(cfg.BcryptCost)
	engine := service.NewOTPEngine()
	guard := service.NewSessionGuard(logger, userRepo, jwtSvc, nil)
	sender := consoleSender{}

	verifySvc := service.NewEmailVerificationService(logger, userRepo, verifyTokens, sender, links, service.FlowConfig{TTL: cfg.VerificationTokenTTL})
	a := &app{
		reader:    reader,
		users:     userRepo,
		jwt:       jwtSvc,
		verifySvc: verifySvc,
		resetSvc:  service.NewPasswordResetService(logger, userRepo, resetTokens, hasher, jwtSvc, sender, links, service.FlowConfig{TTL: cfg.ResetTokenTTL}),
		userSvc:   service.NewUserService(logger, userRepo, hasher, verifySvc, jwtSvc, nil),
		authSvc:   service.NewAuthService(logger, userRepo, hasher, engine, jwtSvc, guard, nil, nil),
		twoFactor: service.NewTwoFactorService(logger, userRepo, engine, cfg.TOTPIssuer, cfg.TOTPClearSecretOnDisable, nil),
	}

	for {
		fmt.Println("\n===== SplitShifts Auth =====")
		if a.session != nil {
			fmt.Printf("Sesión: %s\n", a.session.User.Email)
		}
		fmt.Println("[1] Registrar usuario")
		fmt.Println("[2] Reenviar verificación")
		fmt.Println("[3] Verificar email (token)")
		fmt.Println("[4] Login")
		fmt.Println("[5] Pedir reset de contraseña")
		fmt.Println("[6] Completar reset")
		fmt.Println("[7] Activar 2FA (requiere sesión)")
		fmt.Println("[8] Desactivar 2FA (requiere sesión)")
		fmt.Println("[9] Activar/desactivar cuenta")
		fmt.Println("[L] Logout")
		fmt.Println("[Q] Salir")
		choice := strings.ToUpper(readLine(reader, "Opción: "))

		var err error
		switch choice {
		case "1":
			err = a.register(ctx)
		case "2":
			err = a.verifySvc.SendVerification(ctx, readLine(reader, "Email: "))
		case "3":
			var verified string
			verified, err = a.verifySvc.Verify(ctx, readLine(reader, "Token: "))
			if err == nil {
				fmt.Printf("Email %s verificado.\n", verified)
			}
		case "4":
			err = a.login(ctx)
		case "5":
			err = a.resetSvc.RequestReset(ctx, readLine(reader, "Email: "))
		case "6":
			err = a.completeReset(ctx)
		case "7":
			err = a.enableTwoFactor(a.sessionContext(ctx))
		case "8":
			err = a.twoFactor.DisableEnrollment(a.sessionContext(ctx))
		case "9":
			err = a.toggleActive(ctx)
		case "L":
			if a.session != nil {
				err = a.authSvc.Logout(ctx, a.session.Tokens.RefreshToken)
				a.session = nil
			}
		case "Q":
			return
		default:
			fmt.Println("Opción inválida.")
			continue
		}
		printResult(err)
	}
}

func (a *app) sessionContext(ctx context.Context) context.Context {
	if a.session == nil {
		return ctx
	}
	return service.WithSession(ctx, service.SessionInfo{UserID: a.session.User.ID, Email: a.session.User.Email})
}

func (a *app) register(ctx context.Context) error {
	var input service.RegisterInput
	input.FirstName = readLine(a.reader, "Nombre: ")
	input.LastName = readLine(a.reader, "Apellido: ")
	input.Email = readLine(a.reader, "Email: ")
	input.Password = readLine(a.reader, "Contraseña: ")
	input.ConfirmPassword = readLine(a.reader, "Repetir contraseña: ")
	user, err := a.userSvc.Register(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("Usuario %s creado (ID: %s).\n", user.Email, user.ID)
	return nil
}

func (a *app) login(ctx context.Context) error {
	emailAddr := readLine(a.reader, "Email: ")
	password := readLine(a.reader, "Contraseña: ")
	pre, err := a.authSvc.Preflight(ctx, emailAddr, password)
	if err != nil {
		return err
	}
	var code string
	if pre.TwoFactorRequired {
		code = readLine(a.reader, "Código 2FA: ")
	}
	res, err := a.authSvc.CompleteLogin(ctx, service.LoginInput{Email: emailAddr, Password: password, Code: code})
	if err != nil {
		return err
	}
	a.session = &res
	fmt.Printf("Bienvenida/o %s.\n", res.User.FullName())
	return nil
}

func (a *app) completeReset(ctx context.Context) error {
	token := readLine(a.reader, "Token: ")
	ok, err := a.resetSvc.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return service.ErrInvalidOrExpired
	}
	return a.resetSvc.CompleteReset(ctx, service.ResetPasswordInput{
		Token:           token,
		Password:        readLine(a.reader, "Nueva contraseña: "),
		ConfirmPassword: readLine(a.reader, "Repetir contraseña: "),
	})
}

func (a *app) enableTwoFactor(ctx context.Context) error {
	uri, err := a.twoFactor.BeginEnrollment(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Carga esta URI en tu app autenticadora:")
	fmt.Println(uri)
	return a.twoFactor.ConfirmEnrollment(ctx, readLine(a.reader, "Código: "))
}

func (a *app) toggleActive(ctx context.Context) error {
	user, err := a.users.GetByEmail(ctx, readLine(a.reader, "Email: "))
	if err != nil {
		return err
	}
	active := !user.IsActive
	if err := a.users.Update(ctx, user.ID, domain.UserPatch{IsActive: &active}); err != nil {
		return err
	}
	if !active {
		n, err := a.jwt.RevokeUser(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Sesiones revocadas: %d\n", n)
	}
	fmt.Printf("Cuenta %s activa=%t\n", user.Email, active)
	return nil
}

func printResult(err error) {
	if err == nil {
		fmt.Println("OK")
		return
	}
	if authErr, ok := service.AsAuthError(err); ok {
		fmt.Printf("Error [%s]: %s\n", authErr.Kind, authErr.Message)
		for field, msg := range authErr.Fields {
			fmt.Printf("  - %s: %s\n", field, msg)
		}
		return
	}
	fmt.Printf("Error: %v\n", err)
}

func readLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
