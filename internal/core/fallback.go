package core

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const offlineApology = "معلش يا غالي، النت فاصل عندي حاليًا فمش هعرف أجاوب على دي. بس أنا بتعلم كل يوم!"

// FAQRule answers a question when any of its keywords appears in it.
type FAQRule struct {
	Keywords []string `toml:"keywords"`
	Answer   string   `toml:"answer"`
}

var defaultFAQ = []FAQRule{
	{Keywords: []string{"عصر"}, Answer: "صلاة العصر في القاهرة النهاردة الساعة ٤:١٢. متتأخرش!"},
	{Keywords: []string{"فجر"}, Answer: "الفجر بيبدأ مع الأذان وبيخلص مع شروق الشمس."},
	{Keywords: []string{"مطر", "طقس", "جو"}, Answer: "مفيش مطر متوقع النهاردة في القاهرة. الجو تمام!"},
	{Keywords: []string{"نصيحة"}, Answer: "اشرب كوباية مية كل ساعة—جسمك هيدعيلك بعدين! 💧"},
	{Keywords: []string{"دولار", "سعر"}, Answer: "يا غالي، السعر ده بيتغير كل ثانية. الأحسن تبص على موقع البنك الرسمي عشان تاخد الزتونة."},
	{Keywords: []string{"عمرو دياب"}, Answer: "فنان مصري عالمي, معروف بـ'الهضبة', من مواليد 1961."},
	{Keywords: []string{"أركز", "تركيز", "امتحان"}, Answer: "ألف سلامة! اشرب مية كتير، واقعد في أوضة ضلمة شوية. لو استمر، يبقى لازم دكتور."},
	{Keywords: []string{"أول آية", "قرآن"}, Answer: "بسم الله الرحمن الرحيم."},
	{Keywords: []string{"أهرامات", "تقع", "فين"}, Answer: "في الجيزة، يا باشا — ودي طبعًا من عجائب الدنيا السبع."},
	{Keywords: []string{"رمضان", "أيام"}, Answer: "يا إما 29 أو 30 يوم، على حسب رؤية الهلال."},
	{Keywords: []string{"مشروع", "صغير", "أبدأ"}, Answer: "ابدأ بفكرة بتحل مشكلة لناس كتير، وجربها بأقل فلوس ممكنة الأول."},
	{Keywords: []string{"صداع", "علاج"}, Answer: "ألف سلامة! اشرب مية، ارتاح في أوضة ضلمة، ودلّك صدغك بالراحة. لو استمر، يبقى لازم دكتور."},
	{Keywords: []string{"قرآن", "أحفظ"}, Answer: "ابدأ بجزء عمّ، وكرر الآيات 10 مرات كل يوم وحاول تفهم معناها."},
	{Keywords: []string{"كشري", "أكلة", "أكل"}, Answer: "الكشري أشهر أكلة شعبية في مصر، ده خليط رز ومكرونة وعدس وحمص، وعليه صلصة وتقلية."},
	{Keywords: []string{"نيل", "نهر"}, Answer: "النيل هو أساس الحياة في مصر، وأطول نهر في العالم. بيعدي على القاهرة ومدن تانية كتير."},
	{Keywords: []string{"مثل", "شائع", "يقولوا"}, Answer: "فيه مثل مصري مشهور بيقول: 'القرد في عين أمه غزال'."},
	{Keywords: []string{"ملوخية"}, Answer: "الملوخية دي أكلة مصرية أصيلة، شوربة خضرا بتتعمل بالتوم والكزبرة، وبتتاكل مع رز أو عيش."},
	{Keywords: []string{"خان الخليلي"}, Answer: "خان الخليلي ده حي وسوق تاريخي في القاهرة القديمة، مشهور بالتحف والهدايا والأجواء التراثية."},
}

// DefaultFAQ returns a copy of the built-in rules.
func DefaultFAQ() []FAQRule {
	return cloneRules(defaultFAQ)
}

// OfflineResponder answers from a fixed rule list when the model is unreachable.
type OfflineResponder struct {
	mu       sync.RWMutex
	rules    []FAQRule
	fallback string
}

func NewOfflineResponder(rules []FAQRule) *OfflineResponder {
	if rules == nil {
		rules = defaultFAQ
	}
	return &OfflineResponder{rules: cloneRules(rules), fallback: offlineApology}
}

// Answer returns the answer of the first rule with a keyword contained in the
// lowercased question, or the generic apology.
func (r *OfflineResponder) Answer(question string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return MatchFAQ(r.rules, question, r.fallback)
}

// SetRules swaps the rule list. An empty fallback keeps the current one.
func (r *OfflineResponder) SetRules(rules []FAQRule, fallback string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = cloneRules(rules)
	if fallback != "" {
		r.fallback = fallback
	}
}

// MatchFAQ is the pure lookup behind OfflineResponder.
func MatchFAQ(rules []FAQRule, question, fallback string) string {
	lower := cases.Lower(language.Und)
	q := lower.String(question)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(q, lower.String(kw)) {
				return rule.Answer
			}
		}
	}
	return fallback
}

func cloneRules(rules []FAQRule) []FAQRule {
	out := make([]FAQRule, len(rules))
	for i, r := range rules {
		out[i] = FAQRule{Keywords: append([]string(nil), r.Keywords...), Answer: r.Answer}
	}
	return out
}
