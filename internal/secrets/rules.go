package secrets

// DefaultRules returns detection rules for credentials commonly committed to
// source trees.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "private-key", Description: "PEM private key header",
			Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`},
		{ID: "aws-access-key-id", Description: "AWS access key ID",
			Pattern: `\b(?:A3T[A-Z0-9]|AKIA|ASIA|AGPA|AIDA|AROA|ANPA)[A-Z0-9]{16}\b`},
		{ID: "aws-secret-access-key", Description: "AWS secret access key assignment",
			Pattern: `(?i)aws_?secret_?(?:access_?)?key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`, Keywords: []string{"aws"}},
		{ID: "github-token", Description: "GitHub token",
			Pattern: `\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}\b|\bgithub_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Description: "GitLab personal access token",
			Pattern: `\bglpat-[A-Za-z0-9_\-]{20,}`},
		{ID: "slack-token", Description: "Slack token",
			Pattern: `\bxox[abprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "stripe-key", Description: "Stripe secret key",
			Pattern: `\b[sr]k_(?:live|test)_[A-Za-z0-9]{24,}`},
		{ID: "google-api-key", Description: "Google API key",
			Pattern: `\bAIza[A-Za-z0-9_\-]{35}`},
		{ID: "openai-api-key", Description: "OpenAI API key",
			Pattern: `\bsk-(?:proj-)?[A-Za-z0-9_\-]{40,}`},
		{ID: "npm-token", Description: "npm access token",
			Pattern: `\bnpm_[A-Za-z0-9]{36}\b`},
		{ID: "jwt", Description: "JSON Web Token",
			Pattern: `\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`},
		{ID: "connection-string", Description: "URL with embedded credentials",
			Pattern: `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s:/@]+:[^\s@]+@[^\s'"]+`},
		{ID: "generic-credential", Description: "Credential-named assignment",
			Pattern:  `(?i)\b(?:api[_-]?key|secret[_-]?key|client[_-]?secret|access[_-]?token|auth[_-]?token|password|passwd)\s*[:=]\s*['"][^'"\s]{8,}['"]`,
			Keywords: []string{"key", "secret", "token", "pass"}},
	}
}
