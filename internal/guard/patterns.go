package guard

// DefaultInjectionPatterns match attempts to override the persona's instructions. English and
// German phrasings are covered because the personas answer in both.
var DefaultInjectionPatterns = []string{
	`ignore\s+(all\s+|any\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|messages)`,
	`disregard\s+(all\s+|any\s+)?(the\s+)?(previous|prior|above|earlier|your)\s+(instructions|prompts|rules)`,
	`forget\s+(all\s+)?(your|the)\s+(instructions|rules|guidelines)`,
	`(print|reveal|show|repeat|output|leak)\s+(me\s+)?(the\s+|your\s+)?(system|hidden|initial)\s+(prompt|instructions)`,
	`you\s+are\s+now\s+(in\s+)?(developer|dan|jailbreak|god)\s+mode`,
	`ignorier(e|en)?\s+(alle\s+)?(vorherigen|bisherigen|obigen)\s+(anweisungen|instruktionen|regeln)`,
	`(zeig|gib)\s+(mir\s+)?(den|deinen)\s+system-?\s?prompt`,
}

// DefaultPIIPatterns match personal data that must neither reach the backend nor leave it.
var DefaultPIIPatterns = []string{
	`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`,
	`\b[a-z]{2}\d{2}(?:\s?[a-z0-9]{4}){3,7}(?:\s?[a-z0-9]{1,3})?\b`,
	`(?:\+|\b00)\d{1,3}[\s/\-]?\(?\d{2,5}\)?[\s/\-]?\d{3,}[\s\-]?\d{0,6}\b`,
	`\b(?:\d{4}[\s\-]?){3}\d{4}\b`,
}

// DefaultBlocklistPatterns match secrets and key-shaped tokens in model output.
var DefaultBlocklistPatterns = []string{
	`\bsk-[a-z0-9_\-]{20,}`,
	`\bAKIA[0-9A-Z]{16}\b`,
	`\bgh[pousr]_[a-z0-9]{36,}\b`,
	`\bxox[abpr]-[a-z0-9\-]{10,}`,
	`-----BEGIN\s+[A-Z ]*PRIVATE\s+KEY-----`,
	`\b(password|passwort|api[_\-]?key|secret)\s*[:=]\s*\S{6,}`,
}
