// Package redaction scrubs LLM provider credentials and worker-produced
// secrets out of orchestrator logs before they ever hit disk. The swarm's
// secret surface is narrow compared to a general chat application: the
// orchestrator only ever handles (a) its own provider API keys
// (Anthropic/OpenAI/GitHub Copilot, configured via pkg/config) and (b)
// whatever a worker's stdout/task response happens to echo back — which,
// because workers run arbitrary shell commands inside pkg/agent/sandbox,
// can include anything from a dumped .env file to a git credential
// helper's cached token. It does not handle end-user PII (phone numbers,
// IP addresses, emails), since orchestrator logs never carry any.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `json:"enabled"`

	// RedactProviderKeys redacts LLM provider API keys and bearer tokens
	// (Anthropic, OpenAI, GitHub Copilot, generic secret-shaped strings).
	RedactProviderKeys bool `json:"redact_provider_keys"`

	// RedactWorkerSecrets redacts secret-shaped values a worker's stdout
	// or task response echoes back (cloud credentials, .env assignments,
	// generic password/token fields).
	RedactWorkerSecrets bool `json:"redact_worker_secrets"`

	// CustomPatterns allows additional regex patterns to redact.
	CustomPatterns []string `json:"custom_patterns"`

	// Replacement is the string used to replace sensitive data.
	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		RedactProviderKeys:  true,
		RedactWorkerSecrets: true,
		Replacement:         "[REDACTED]",
	}
}

// Redactor provides sensitive data redaction capabilities.
type Redactor struct {
	config          Config
	compiledCustom  []*regexp.Regexp
	compiledBuiltin map[string]*regexp.Regexp
	mu              sync.RWMutex
}

// NewRedactor creates a new Redactor with the given configuration.
func NewRedactor(config Config) *Redactor {
	r := &Redactor{
		config:          config,
		compiledBuiltin: make(map[string]*regexp.Regexp),
	}

	r.compileBuiltinPatterns()

	if len(config.CustomPatterns) > 0 {
		r.compiledCustom = make([]*regexp.Regexp, 0, len(config.CustomPatterns))
		for _, pattern := range config.CustomPatterns {
			re, err := regexp.Compile(pattern)
			if err == nil {
				r.compiledCustom = append(r.compiledCustom, re)
			}
		}
	}

	return r
}

// compileBuiltinPatterns compiles the builtin redaction patterns.
func (r *Redactor) compileBuiltinPatterns() {
	// LLM provider credentials.
	r.compiledBuiltin["openai_key"] = regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`)
	r.compiledBuiltin["anthropic_key"] = regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`)
	r.compiledBuiltin["github_token"] = regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`)
	r.compiledBuiltin["bearer_token"] = regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-\.]{20,})`)
	r.compiledBuiltin["jwt"] = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)

	// Worker-stdout secret shapes: a task that cats a .env file, dumps
	// cloud credentials, or prints a generic key=value secret assignment.
	r.compiledBuiltin["api_key_assignment"] = regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret|secret[_-]?key|secretkey|private[_-]?key|auth[_-]?token|access[_-]?token|refresh[_-]?token)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{12,})['"]?`)
	r.compiledBuiltin["password_assignment"] = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?([^'"\s]{4,})['"]?`)
	r.compiledBuiltin["aws_access_key"] = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
	r.compiledBuiltin["aws_secret"] = regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[=:]\s*['"]?([a-zA-Z0-9/+=]{40})['"]?`)
	r.compiledBuiltin["json_secret"] = regexp.MustCompile(`"(?:api_key|apikey|secret|password|token|private_key)"\s*:\s*"([^"]+)"`)
}

// Redact applies all configured redaction rules to the input string.
func (r *Redactor) Redact(input string) string {
	if !r.config.Enabled {
		return input
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := input

	if r.config.RedactProviderKeys {
		result = r.redactPatterns(result,
			"openai_key", "anthropic_key", "github_token", "bearer_token", "jwt",
		)
	}

	if r.config.RedactWorkerSecrets {
		result = r.redactPatterns(result,
			"api_key_assignment", "password_assignment", "aws_access_key", "aws_secret",
		)
		result = r.redactJSONSecrets(result)
	}

	for _, re := range r.compiledCustom {
		result = re.ReplaceAllString(result, r.config.Replacement)
	}

	return result
}

// redactPatterns applies redaction for the specified patterns.
func (r *Redactor) redactPatterns(input string, patternNames ...string) string {
	result := input
	for _, name := range patternNames {
		if re, ok := r.compiledBuiltin[name]; ok {
			// For patterns with capture groups, only redact the captured content
			result = re.ReplaceAllStringFunc(result, func(match string) string {
				submatches := re.FindStringSubmatch(match)
				if len(submatches) > 1 {
					redacted := match
					for i := len(submatches) - 1; i >= 1; i-- {
						if submatches[i] != "" {
							redacted = strings.Replace(redacted, submatches[i], r.config.Replacement, 1)
						}
					}
					return redacted
				}
				return r.config.Replacement
			})
		}
	}
	return result
}

// redactJSONSecrets handles JSON key-value pairs specially.
func (r *Redactor) redactJSONSecrets(input string) string {
	re := r.compiledBuiltin["json_secret"]
	return re.ReplaceAllStringFunc(input, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) > 1 {
			return strings.Replace(match, submatches[1], r.config.Replacement, 1)
		}
		return match
	})
}

// RedactFields redacts sensitive values in a map, used for the
// runID/taskID/workerID-keyed structured fields pkg/logger attaches to
// every entry.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if !r.config.Enabled {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		lowerKey := strings.ToLower(k)
		if r.isSensitiveKey(lowerKey) {
			result[k] = r.config.Replacement
		} else {
			switch val := v.(type) {
			case string:
				result[k] = r.Redact(val)
			case map[string]any:
				result[k] = r.RedactFields(val)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// isSensitiveKey checks if a key name suggests sensitive data.
func (r *Redactor) isSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "passwd", "pwd",
		"api_key", "apikey", "api_secret",
		"secret", "secret_key", "private_key",
		"token", "access_token", "refresh_token", "auth_token",
		"credential", "credentials",
		"api_key_id", "secret_access_key",
	}

	for _, sk := range sensitiveKeys {
		if strings.Contains(key, sk) {
			return true
		}
	}
	return false
}

// SetEnabled enables or disables redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

// AddCustomPattern adds a custom redaction pattern at runtime.
func (r *Redactor) AddCustomPattern(pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	r.compiledCustom = append(r.compiledCustom, re)
	return nil
}

// Global redactor instance with default config
var globalRedactor = NewRedactor(DefaultConfig())

// Redact applies redaction using the global redactor.
func Redact(input string) string {
	return globalRedactor.Redact(input)
}

// RedactFields redacts fields using the global redactor.
func RedactFields(fields map[string]any) map[string]any {
	return globalRedactor.RedactFields(fields)
}

// SetGlobalConfig sets the configuration for the global redactor.
func SetGlobalConfig(config Config) {
	globalRedactor = NewRedactor(config)
}
