package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	AdminKey  string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-Key", c.AdminKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

// run hace el request y falla si el status no es 2xx.
func run(cl *client, method, path string, body []byte) error {
	status, respBody, err := cl.do(method, path, body)
	if err != nil {
		return err
	}
	cl.print(status, respBody)
	if status/100 != 2 {
		return fmt.Errorf("status=%d", status)
	}
	return nil
}

func main() {
	var (
		baseURL  = envOr("CTOWER_URL", "http://localhost:8080")
		adminKey = envOr("CTOWER_ADMIN_KEY", "")
		out      = envOr("CTOWER_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "ctower",
		Short: "CLI admin para Control Tower (vía /v1/admin)",
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env CTOWER_URL)")
	root.PersistentFlags().StringVar(&adminKey, "admin-key", adminKey, "Admin key (env CTOWER_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if adminKey == "" {
			return fmt.Errorf("falta admin key (flag --admin-key o env CTOWER_ADMIN_KEY)")
		}
		cl.BaseURL, cl.AdminKey, cl.OutFormat = baseURL, adminKey, out
		return nil
	}

	// ======================================================================
	// tenants
	// ======================================================================
	tenantsCmd := &cobra.Command{Use: "tenants", Short: "Gestión de tenants"}

	var tID, tName, tPlan string
	var tVerified bool
	tenantsCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Crear un tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tName == "" {
				return fmt.Errorf("falta --name")
			}
			body, _ := json.Marshal(map[string]any{
				"id": tID, "name": tName, "plan": tPlan, "verified": tVerified,
			})
			return run(cl, "POST", "/v1/admin/tenants", body)
		},
	}
	tenantsCreateCmd.Flags().StringVar(&tID, "id", "", "ID del tenant (opcional, se genera)")
	tenantsCreateCmd.Flags().StringVar(&tName, "name", "", "Nombre del tenant")
	tenantsCreateCmd.Flags().StringVar(&tPlan, "plan", "sandbox", "Plan: sandbox|starter|builder|enterprise")
	tenantsCreateCmd.Flags().BoolVar(&tVerified, "verified", false, "Crear ya verificado")

	tenantsGetCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Ver un tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "GET", "/v1/admin/tenants/"+args[0], nil)
		},
	}

	tenantsVerifyCmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Marcar un tenant como verificado (levanta caps de riesgo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "POST", "/v1/admin/tenants/"+args[0]+"/verify", nil)
		},
	}

	tenantsCmd.AddCommand(tenantsCreateCmd, tenantsGetCmd, tenantsVerifyCmd)

	// ======================================================================
	// agents
	// ======================================================================
	agentsCmd := &cobra.Command{Use: "agents", Short: "Gestión de agentes"}

	var aTenant, aName, aPayment string
	var aLive bool
	var aDaily, aTx, aAutoApprove, aApproveOver int64
	var aVelocity int
	agentsCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Crear un agente (imprime la credencial UNA sola vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if aTenant == "" || aName == "" {
				return fmt.Errorf("faltan --tenant y/o --name")
			}
			req := map[string]any{
				"tenantId": aTenant, "name": aName, "live": aLive,
			}
			if aDaily > 0 {
				req["dailyLimit"] = aDaily
			}
			if aTx > 0 {
				req["transactionLimit"] = aTx
			}
			if aVelocity > 0 {
				req["velocityLimit"] = aVelocity
			}
			if aPayment != "" {
				req["paymentMethod"] = aPayment
			}
			if aAutoApprove > 0 || aApproveOver > 0 {
				req["approval"] = map[string]any{
					"autoApproveUnder":    aAutoApprove,
					"requireApprovalOver": aApproveOver,
				}
			}
			body, _ := json.Marshal(req)
			return run(cl, "POST", "/v1/admin/agents", body)
		},
	}
	agentsCreateCmd.Flags().StringVar(&aTenant, "tenant", "", "ID del tenant dueño")
	agentsCreateCmd.Flags().StringVar(&aName, "name", "", "Nombre del agente")
	agentsCreateCmd.Flags().BoolVar(&aLive, "live", false, "Credencial live (default: test)")
	agentsCreateCmd.Flags().Int64Var(&aDaily, "daily-limit", 0, "Límite diario en centavos")
	agentsCreateCmd.Flags().Int64Var(&aTx, "tx-limit", 0, "Límite por transacción en centavos")
	agentsCreateCmd.Flags().IntVar(&aVelocity, "velocity", 0, "Autorizaciones por hora")
	agentsCreateCmd.Flags().StringVar(&aPayment, "payment-method", "", "Referencia del método de pago")
	agentsCreateCmd.Flags().Int64Var(&aAutoApprove, "auto-approve-under", 0, "Auto-aprobar bajo este monto (centavos)")
	agentsCreateCmd.Flags().Int64Var(&aApproveOver, "require-approval-over", 0, "Requerir aprobación sobre este monto (centavos)")

	agentsGetCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Ver un agente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "GET", "/v1/admin/agents/"+args[0], nil)
		},
	}

	agentsRevokeCmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revocar un agente (su credencial deja de servir)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "DELETE", "/v1/admin/agents/"+args[0], nil)
		},
	}

	var stopActive bool
	agentsStopCmd := &cobra.Command{
		Use:   "emergency-stop <id>",
		Short: "Activar/desactivar el freno de emergencia de un agente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]any{"active": stopActive})
			return run(cl, "POST", "/v1/admin/agents/"+args[0]+"/emergency-stop", body)
		},
	}
	agentsStopCmd.Flags().BoolVar(&stopActive, "active", true, "true activa el freno, false lo levanta")

	agentsCmd.AddCommand(agentsCreateCmd, agentsGetCmd, agentsRevokeCmd, agentsStopCmd)

	// ======================================================================
	// authorizations
	// ======================================================================
	authsCmd := &cobra.Command{Use: "authorizations", Short: "Autorizaciones flaggeadas y estado"}

	authsApproveCmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Aprobar una autorización flaggeada (emite el token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "POST", "/v1/admin/authorizations/"+args[0]+"/approve", nil)
		},
	}

	authsStatusCmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Ver el estado de una autorización",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "GET", "/v1/authorizations/"+args[0], nil)
		},
	}

	authsRevokeCmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revocar una autorización pendiente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cl, "POST", "/v1/authorizations/"+args[0]+"/revoke", nil)
		},
	}

	authsCmd.AddCommand(authsApproveCmd, authsStatusCmd, authsRevokeCmd)

	root.AddCommand(tenantsCmd, agentsCmd, authsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
