// Package recommend turns free-form assistant text into structured
// enrichment: it scans for known car vocabulary, resolves matching catalog
// records, and derives suggested next steps. Extraction is a documented
// substring heuristic over fixed bilingual vocabularies, not NLU; the
// behavior is intentionally simple and deterministic.
package recommend

// Term is one vocabulary concept with its English and Chinese surface forms.
// Matching treats the two forms independently: if both appear in a text,
// both are reported and the caller deduplicates semantically.
type Term struct {
	EN string
	ZH string
}

// Brands is the fixed brand vocabulary.
var Brands = []Term{
	{"Toyota", "丰田"},
	{"Honda", "本田"},
	{"Tesla", "特斯拉"},
	{"BYD", "比亚迪"},
	{"Volkswagen", "大众"},
	{"BMW", "宝马"},
	{"Mercedes", "奔驰"},
	{"Audi", "奥迪"},
	{"Nissan", "日产"},
	{"Hyundai", "现代"},
	{"Kia", "起亚"},
	{"Ford", "福特"},
	{"Mazda", "马自达"},
	{"Subaru", "斯巴鲁"},
	{"Lexus", "雷克萨斯"},
	{"Volvo", "沃尔沃"},
}

// Categories is the fixed category and fuel-type vocabulary.
var Categories = []Term{
	{"SUV", "越野车"},
	{"sedan", "轿车"},
	{"hatchback", "掀背车"},
	{"minivan", "商务车"},
	{"pickup", "皮卡"},
	{"coupe", "跑车"},
	{"electric", "电动"},
	{"hybrid", "混动"},
	{"gasoline", "汽油"},
	{"diesel", "柴油"},
}
