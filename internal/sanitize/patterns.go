package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// fixed returns a replacement strategy that substitutes the whole match with
// a fixed token.
func fixed(token string) func([]string) string {
	return func([]string) string { return token }
}

// Rules is the ordered redaction rule set. Ordering matters: web-transport
// and infrastructure patterns (which embed credentials inside longer strings)
// run before the generic credential patterns that could otherwise match
// inside an already-matched span, and PII masking runs last.
var Rules = []Rule{
	{
		// ?token=abc&key=xyz style query parameters.
		Name:    "url_params",
		Pattern: regexp.MustCompile(`(?i)([?&])(token|key|secret|password|pwd|api_key|access_token)=([^&\s]+)`),
		Replace: func(g []string) string { return g[1] + g[2] + "=***REDACTED***" },
	},
	{
		Name:    "basic_auth",
		Pattern: regexp.MustCompile(`Basic\s+[A-Za-z0-9+/]+=*`),
		Replace: fixed("Basic ***REDACTED***"),
	},
	{
		Name:    "bearer_token",
		Pattern: regexp.MustCompile(`Bearer\s+[A-Za-z0-9_\-.]+`),
		Replace: fixed("Bearer ***REDACTED***"),
	},
	{
		Name:    "cookie",
		Pattern: regexp.MustCompile(`(?i)(sessionid|session|jsessionid|phpsessid|connect\.sid)=([^;\s]+)`),
		Replace: func(g []string) string { return g[1] + "=***REDACTED***" },
	},
	{
		// Datastore connection strings carry user:pass@host.
		Name:    "db_connection",
		Pattern: regexp.MustCompile(`(?i)(mongodb|mysql|postgresql|redis)://\S+`),
		Replace: func(g []string) string { return g[1] + "://***DB_CREDS_REDACTED***" },
	},
	{
		Name:    "aws_key",
		Pattern: regexp.MustCompile(`(?i)\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
		Replace: fixed("***AWS_KEY_REDACTED***"),
	},
	{
		Name:    "private_key",
		Pattern: regexp.MustCompile(`(?s)-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----.*?-----END\s+(?:RSA\s+)?PRIVATE\s+KEY-----`),
		Replace: fixed("***PRIVATE_KEY_REDACTED***"),
	},
	{
		Name:    "jwt",
		Pattern: regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		Replace: fixed("eyJ***JWT_REDACTED***"),
	},
	{
		Name:    "api_key",
		Pattern: regexp.MustCompile(`\b(?:sk-|pk-|token-|ghp_|gho_|ssh-rsa)[A-Za-z0-9_+\-=]{20,}`),
		Replace: fixed("***API_KEY_REDACTED***"),
	},
	{
		// password: "hunter2", secret=abc — JSON and form fields.
		Name:    "password_field",
		Pattern: regexp.MustCompile(`(?i)(password|passwd|pwd|secret)["']?\s*[:=]\s*["']?([^"'\s]+)`),
		Replace: func(g []string) string { return g[1] + "=***PASS_REDACTED***" },
	},
	{
		// The leading guard group rejects matches that start right after a
		// mask character, so re-sanitizing "u***r@host" cannot re-match the
		// trailing "r@host".
		Name:    "email",
		Pattern: regexp.MustCompile(`(^|[^A-Za-z0-9._%+*-])([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`),
		Replace: func(g []string) string { return g[1] + maskEmailLocal(g[2]) + "@" + g[3] },
	},
	{
		Name:    "ipv4",
		Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		Replace: func(g []string) string { return maskIPv4(g[0]) },
	},
	{
		// CN mobile numbers.
		Name:    "phone",
		Pattern: regexp.MustCompile(`\b1[3-9]\d{9}\b`),
		Replace: fixed("***PHONE***"),
	},
	{
		// 18-digit national ID numbers (17 digits + check digit).
		Name:    "id_card",
		Pattern: regexp.MustCompile(`\b\d{17}[\dXx]\b`),
		Replace: fixed("***ID_CARD***"),
	},
	{
		Name:    "home_path",
		Pattern: regexp.MustCompile(`(?:/home/[a-z0-9_-]+|/root\b|C:\\Users\\[^\\\s]+)`),
		Replace: fixed("/***"),
	},
}

// maskEmailLocal keeps the first and last character of the local part.
func maskEmailLocal(local string) string {
	if len(local) <= 2 {
		return "***"
	}
	return fmt.Sprintf("%c***%c", local[0], local[len(local)-1])
}

// maskIPv4 keeps the first two octets.
func maskIPv4(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "***.*.*.*"
	}
	return parts[0] + "." + parts[1] + ".*.*"
}

// validators are the strict high-confidence patterns used by Validate.
var validators = []struct {
	name   string
	re     *regexp.Regexp
	detail string
}{
	{"openai_key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}`), "possible provider API key (sk- prefix)"},
	{"github_token", regexp.MustCompile(`\bghp_[A-Za-z0-9]{20,}`), "possible GitHub personal access token"},
	{"aws_key", regexp.MustCompile(`(?i)\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), "possible AWS access key"},
	{"private_key", regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----`), "PEM private key header"},
}
