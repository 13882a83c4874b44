package treatment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sipadi/padi/internal/domain"
)

const systemPrompt = "You are an expert agricultural advisor specializing in rice plant diseases."

const answerFormat = `{
    "langkah_penanganan": ["Langkah 1: ...", "Langkah 2: ..."],
    "rekomendasi_obat": [
        {"nama": "Nama Obat", "jenis": "Fungisida/Bakterisida/etc", "dosis": "Dosis yang direkomendasikan", "cara_pakai": "Cara penggunaan"}
    ],
    "panduan_penggunaan": ["Panduan 1: ...", "Panduan 2: ..."],
    "pencegahan": ["Langkah pencegahan 1: ...", "Langkah pencegahan 2: ..."],
    "pencegahan_penyakit_lain": [
        {"penyakit": "Nama penyakit lain", "langkah": ["Langkah pencegahan singkat 1", "Langkah pencegahan singkat 2"]}
    ]
}`

// BuildPrompt renders the advisor prompt for a diagnosis.
func BuildPrompt(req *domain.TreatmentRequest) string {
	var b strings.Builder
	b.WriteString("Anda adalah ahli pertanian spesialis penyakit tanaman padi. ")
	b.WriteString("Berikan solusi lengkap untuk penyakit berikut:\n\n")
	fmt.Fprintf(&b, "Penyakit: %s\n", req.Primary.DiseaseName)
	fmt.Fprintf(&b, "Deskripsi: %s\n", req.DiseaseDescription)
	fmt.Fprintf(&b, "Tingkat Keyakinan: %.1f%%\n", req.Primary.CFFinal*100)
	fmt.Fprintf(&b, "Metode Diagnosis: %s\n", domain.MethodForwardChainingCF)

	if len(req.Symptoms) > 0 {
		b.WriteString("\nGEJALA YANG DIAMATI:\n")
		for _, s := range req.Symptoms {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Name, s.Code)
		}
	}

	var others []string
	for _, r := range req.Secondary {
		if r.DiseaseName != "" {
			others = append(others, fmt.Sprintf("- %s (%s)", r.DiseaseName, r.DiseaseCode))
		}
	}
	if len(others) > 0 {
		b.WriteString("\nPENYAKIT LAIN YANG MUNGKIN:\n")
		b.WriteString(strings.Join(others, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nBerikan solusi dalam format JSON dengan struktur berikut:\n")
	b.WriteString(answerFormat)
	b.WriteString("\n\nBerikan minimal 3-5 langkah untuk setiap kategori.\n")
	b.WriteString("Untuk penyakit lain, berikan langkah pencegahan singkat (2-3 poin) saja.\n")
	b.WriteString(`Jika tidak ada penyakit lain, isi "pencegahan_penyakit_lain" dengan array kosong.` + "\n")
	b.WriteString("Fokus pada solusi praktis dan efektif untuk petani Indonesia.\n")
	return b.String()
}

// ParseAnswer extracts the JSON object between the first '{' and the last
// '}' of raw. When nothing parses, a generic plan carrying raw is returned.
func ParseAnswer(raw string) *domain.Treatment {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return unparsedTreatment(raw)
	}

	var t domain.Treatment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &t); err != nil {
		return unparsedTreatment(raw)
	}
	if t.OtherDiseasePrevention == nil {
		t.OtherDiseasePrevention = []domain.OtherPrevention{}
	}
	t.RawText = raw
	t.Source = domain.SourceAI
	return &t
}
