package rules

// =============================================================================
// BUILT-IN RULE DEFINITIONS BY CATEGORY
// All rules are registered here and compiled once at registry construction.
// Severities feed risk fusion; the rule layer never decides actions itself.
// =============================================================================

// --- PHISHING URL RULES ---
func (r *Registry) registerPhishingURLRules() {
	cat := CategoryPhishingURL

	// Credential context next to a link, in either order. This is the classic
	// "update your password at <link>" lure.
	r.register("credential_phish_url", `(?i)(password|passcode|account|login|credential|verify|2fa|mfa)[^.!?\n]{0,80}https?://\S+`, cat, 70, "Credential keyword followed by a link")
	r.register("url_then_credential", `(?i)https?://\S+[^.!?\n]{0,80}(password|passcode|account|login|credential|verify)`, cat, 65, "Link followed by credential keyword")

	// Structurally suspicious links
	r.register("ip_literal_url", `(?i)https?://(?:\d{1,3}\.){3}\d{1,3}`, cat, 55, "Link to a raw IP address")
	r.register("punycode_url", `(?i)https?://xn--\S+`, cat, 55, "Punycode (homoglyph) domain")
	r.register("url_shortener", `(?i)https?://(bit\.ly|tinyurl\.com|goo\.gl|t\.co|is\.gd|cutt\.ly|rb\.gy)/\S+`, cat, 35, "Link shortener hides destination")
	r.register("free_tld_url", `(?i)https?://[a-z0-9.-]+\.(tk|ml|ga|cf|gq)(/|\s|$)`, cat, 45, "Free TLD commonly abused for phishing")
	r.register("login_path_url", `(?i)https?://\S*(login|signin|verify|secure|webscr|account)[-.\w]*\.\S+`, cat, 40, "Lookalike login path in URL")
}

// --- CREDENTIAL HARVESTING RULES ---
func (r *Registry) registerCredentialRules() {
	cat := CategoryCredential

	r.register("update_credentials", `(?i)(update|verify|confirm|re-?enter|validate|reset)\s+(your\s+)?(password|passcode|credentials?|account|identity)`, cat, 60, "Request to update or verify credentials")
	r.register("account_suspended", `(?i)(account|access)\s+(has\s+been\s+|will\s+be\s+)?(suspended|locked|disabled|deactivated|compromised)`, cat, 55, "Account suspension pretext")
	r.register("ask_password", `(?i)(send|give|tell|share|provide)\s+(me\s+|us\s+)?(your\s+)?(password|passcode|pin|otp|verification\s+code)`, cat, 75, "Direct request for a secret")
	r.register("otp_relay", `(?i)(read|forward|enter)\s+(me\s+)?the\s+(code|otp|one[- ]time\s+pass(word|code))`, cat, 70, "One-time code relay request")
	r.register("security_question", `(?i)(mother'?s\s+maiden\s+name|first\s+pet|security\s+question)`, cat, 50, "Security question harvesting")
}

// --- SCAM RULES ---
func (r *Registry) registerScamRules() {
	cat := CategoryScam

	r.register("lottery_win", `(?i)(you('ve| have)?\s+(been\s+selected|won)|congratulations.{0,40}(prize|winner|lottery))`, cat, 55, "Lottery or prize scam")
	r.register("gift_card", `(?i)(buy|purchase|get)\s+(me\s+)?(a\s+)?(gift\s*cards?|itunes\s+cards?|steam\s+cards?)`, cat, 60, "Gift card payment request")
	r.register("wire_transfer", `(?i)(wire\s+transfer|western\s+union|moneygram|send\s+(the\s+)?(money|funds|payment)\s+(to|via))`, cat, 55, "Untraceable payment request")
	r.register("crypto_doubling", `(?i)(double|triple|10x)\s+your\s+(bitcoin|btc|eth|crypto|investment)`, cat, 65, "Crypto doubling scam")
	r.register("advance_fee", `(?i)(inheritance|unclaimed\s+funds|processing\s+fee|transfer\s+fee)\b.{0,60}(million|\$|usd|€)`, cat, 55, "Advance fee fraud")
	r.register("crypto_wallet_ask", `(?i)(send|transfer)\s+.{0,20}(btc|bitcoin|eth|usdt)\s+to\s+(this\s+)?(wallet|address)`, cat, 65, "Crypto transfer to attacker wallet")
}

// --- IMPERSONATION RULES ---
func (r *Registry) registerImpersonationRules() {
	cat := CategoryImpersonation

	r.register("claims_to_be_exec", `(?i)(this\s+is|i\s+am|i'm)\s+(your\s+)?(the\s+)?(ceo|cfo|boss|manager|director)\b`, cat, 50, "Claims to be an executive")
	r.register("claims_to_be_vendor", `(?i)(this\s+is|i\s+am|i'm|calling)\s+(from\s+)?(microsoft|apple|google|amazon|paypal|your\s+bank)\b`, cat, 55, "Claims to be a trusted vendor")
	r.register("official_notice", `(?i)(official\s+(notice|notification)|final\s+warning)\s+from`, cat, 40, "Fake official notice")
	r.register("irs_police", `(?i)\b(irs|tax\s+office|police|fbi|interpol)\b.{0,60}(owe|arrest|warrant|fine|penalty)`, cat, 60, "Law enforcement intimidation")
}

// --- MALWARE RULES ---
func (r *Registry) registerMalwareRules() {
	cat := CategoryMalware

	r.register("executable_link", `(?i)https?://\S+\.(exe|scr|bat|cmd|msi|apk|jar|vbs)\b`, cat, 75, "Direct link to an executable")
	r.register("enable_macros", `(?i)enable\s+(editing|content|macros)`, cat, 60, "Macro-enabling lure")
	r.register("fake_update", `(?i)(install|download)\s+(the\s+)?(latest\s+)?(flash|codec|plugin|update)\s+(to|from)`, cat, 55, "Fake software update")
	r.register("archive_password", `(?i)(zip|rar|7z)\s+(password|пароль)\s*[:=]`, cat, 50, "Password-protected archive delivery")
}

// --- PROMPT INJECTION RULES ---
func (r *Registry) registerPromptInjectionRules() {
	cat := CategoryPromptInj

	r.register("instruction_override", `(?i)(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`, cat, 70, "Direct instruction override attempt")
	r.register("system_prompt_leak", `(?i)(repeat|print|reveal|show)\s+.{0,30}(system\s+prompt|initial\s+instructions|preamble)`, cat, 65, "System prompt extraction attempt")
	r.register("role_override", `(?i)you\s+are\s+now\s+(a|an|in)\s`, cat, 45, "Role reassignment attempt")
	r.register("developer_mode", `(?i)(developer|dan|jailbreak|god)\s+mode`, cat, 55, "Jailbreak persona request")
}

// --- BEHAVIORAL SIGNAL RULES ---
// Low-severity context signals. They rarely move the score on their own but
// are recorded alongside audit entries.
func (r *Registry) registerSignalRules() {
	r.register("urgency_language", `(?i)\b(urgent(ly)?|immediately|right\s+now|act\s+fast|hurry|deadline|expires?(\s+(today|soon|tonight))?|within\s+\d+\s+(minutes|hours))\b`, CategoryUrgency, 10, "Urgency pressure language")
	r.register("authority_language", `(?i)\b(admin(istrator)?|it\s+(team|department|support)|help\s*desk|security\s+team|compliance|hr\s+department|payroll)\b`, CategoryAuthority, 10, "Authority claim language")
}
