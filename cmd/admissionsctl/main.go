package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	"github.com/noah-isme/scholar-admissions-api/internal/repository"
	"github.com/noah-isme/scholar-admissions-api/internal/service"
	"github.com/noah-isme/scholar-admissions-api/pkg/config"
	"github.com/noah-isme/scholar-admissions-api/pkg/database"
	"github.com/noah-isme/scholar-admissions-api/pkg/logger"
)

// cliActor attributes CLI mutations to an administrator without a user row.
var cliActor = models.Actor{Role: models.RoleAdmin}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "admissionsctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admissionsctl",
		Short: "Scholar admissions operations CLI",
		Long: `admissionsctl imports application and mark sheets, inspects how department codes
and working sets resolve, and provisions portal accounts.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newImportCmd(),
		newResolveCodeCmd(),
		newFilterCmd(),
		newCreateUserCmd(),
	)
	return cmd
}

// env bundles what database-backed commands need.
type env struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, logger: logr}, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
	_ = e.db.Close()
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CSV sheets",
	}
	cmd.AddCommand(
		newImportRunner("applications", "Import application rows into the application table", func(svc *service.ImportService) importFunc {
			return svc.ImportApplications
		}),
		newImportRunner("marks", "Apply a mark sheet to examination records", func(svc *service.ImportService) importFunc {
			return svc.ImportMarks
		}),
	)
	return cmd
}

type importFunc func(ctx context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error)

func newImportRunner(name, short string, pick func(*service.ImportService) importFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			applications := repository.NewScholarRepository(e.db, models.TableApplications)
			examinations := repository.NewScholarRepository(e.db, models.TableExaminations)
			events := service.NewWorkflowEvents(e.logger)
			events.Subscribe("audit", service.AuditSubscriber(repository.NewUserRepository(e.db)))
			exam := service.NewExaminationService(examinations, e.logger, service.WithWorkflowEvents(events))
			svc := service.NewImportService(applications, examinations, exam, validator.New(), events, e.logger, e.cfg.Imports.MaxRows)

			result, err := pick(svc)(cmd.Context(), cliActor, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file with a header row")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newResolveCodeCmd() *cobra.Command {
	var department, faculty string
	cmd := &cobra.Command{
		Use:   "resolve-code",
		Short: "Resolve a department name to its department code",
		RunE: func(cmd *cobra.Command, args []string) error {
			code := admissions.ResolveCode(department, faculty)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "code: %s\n", code)
			if f, ok := admissions.CodeFaculty(code); ok {
				fmt.Fprintf(out, "faculty: %s\n", f)
				fmt.Fprintf(out, "forward marker: %s\n", admissions.ForwardedToCode(code))
			}
			if code == admissions.CodeUnknown {
				return fmt.Errorf("no department code for %q", department)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "Department name")
	cmd.Flags().StringVar(&faculty, "faculty", "", "Faculty or institution context")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func newFilterCmd() *cobra.Command {
	var (
		faculty     string
		department  string
		table       string
		fallback    bool
		showRecords bool
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Show which records a department user would see",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.ScholarTable(table)
			if !t.Valid() {
				return fmt.Errorf("unknown table %q", table)
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			records, err := repository.NewScholarRepository(e.db, t).Select(cmd.Context(), models.ScholarFilter{})
			if err != nil {
				return err
			}
			matcher := admissions.NewMatcher(
				admissions.WithInstitutionFallback(fallback || e.cfg.Workflow.InstitutionFallback),
				admissions.WithMatcherLogger(e.logger),
			)
			return writeMatch(cmd.OutOrStdout(), matcher.FilterForRole(records, faculty, department), showRecords)
		},
	}
	cmd.Flags().StringVar(&faculty, "faculty", "", "Faculty of the department user")
	cmd.Flags().StringVar(&department, "department", "", "Department of the department user")
	cmd.Flags().StringVar(&table, "table", string(models.TableApplications), "scholar_applications or examination_records")
	cmd.Flags().BoolVar(&fallback, "institution-fallback", false, "Allow the institution-wide fallback tier")
	cmd.Flags().BoolVar(&showRecords, "records", false, "List matched application numbers")
	return cmd
}

func writeMatch(out io.Writer, result admissions.MatchResult, showRecords bool) error {
	fmt.Fprintf(out, "tier: %s\n", result.Tier)
	fmt.Fprintf(out, "count: %d\n", len(result.Records))
	if !showRecords {
		return nil
	}
	for _, rec := range result.Records {
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", rec.ApplicationNo, rec.Name, rec.Department); err != nil {
			return err
		}
	}
	return nil
}

func newCreateUserCmd() *cobra.Command {
	var (
		email      string
		fullName   string
		role       string
		faculty    string
		department string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Provision a portal account; the password is read from ADMISSIONS_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := buildUser(email, fullName, role, faculty, department, os.Getenv("ADMISSIONS_PASSWORD"))
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if err := repository.NewUserRepository(e.db).Create(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Email, user.Role, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&fullName, "name", "", "Full name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleDepartment), "ADMIN, DIRECTOR or DEPARTMENT")
	cmd.Flags().StringVar(&faculty, "faculty", "", "Faculty scope for DEPARTMENT accounts")
	cmd.Flags().StringVar(&department, "department", "", "Department scope for DEPARTMENT accounts")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func buildUser(email, fullName, role, faculty, department, password string) (*models.User, error) {
	r := models.UserRole(strings.ToUpper(strings.TrimSpace(role)))
	switch r {
	case models.RoleAdmin, models.RoleDirector:
	case models.RoleDepartment:
		if strings.TrimSpace(faculty) == "" || strings.TrimSpace(department) == "" {
			return nil, fmt.Errorf("DEPARTMENT accounts need --faculty and --department")
		}
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("ADMISSIONS_PASSWORD must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &models.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		Role:         r,
		Faculty:      strings.TrimSpace(faculty),
		Department:   strings.TrimSpace(department),
		Active:       true,
	}, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
