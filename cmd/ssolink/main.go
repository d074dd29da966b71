// Command ssolink prints a signed auto-login URL the way the partner site builds it.
// Useful for exercising /api/sso/auto-login by hand.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/arklim/ratings-auth/internal/infra/security"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL = flag.String("base", "http://localhost:3000/api/sso/auto-login", "auto-login endpoint")
		email   = flag.String("email", "", "partner account email")
		orderNo = flag.String("order", "", "order number to carry through")
		secret  = flag.String("secret", os.Getenv("IAM_SSO_SECRET"), "shared signing secret (default $IAM_SSO_SECRET)")
		skew    = flag.Duration("skew", 0, "shift the timestamp, e.g. -10m to produce a stale link")
	)
	flag.Parse()

	if strings.TrimSpace(*email) == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	params := map[string]string{
		"email":     *email,
		"orderNo":   *orderNo,
		"timestamp": strconv.FormatInt(time.Now().Add(*skew).Unix(), 10),
	}

	target, err := url.Parse(*baseURL)
	if err != nil {
		log.Fatalf("invalid base url: %v", err)
	}

	q := target.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set(security.SignatureParam, security.Sign(params, *secret))
	target.RawQuery = q.Encode()

	fmt.Println(target.String())
}
