// Package treatment produces handling plans for diagnosed rice diseases.
//
// Three advisors are provided: Fallback returns a static plan, HTTPAdvisor
// asks a chat-completions endpoint, and Guarded wraps any advisor in a
// circuit breaker that degrades to the static plan.
package treatment

import (
	"context"
	"errors"

	"github.com/sipadi/padi/internal/domain"
)

// ErrAdvisorUnavailable is returned when a remote advisor cannot answer.
var ErrAdvisorUnavailable = errors.New("treatment advisor unavailable")

// Fallback is the static advisor. It never fails.
type Fallback struct{}

// NewFallback creates the static advisor.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Advise implements domain.TreatmentAdvisor.
func (Fallback) Advise(ctx context.Context, req *domain.TreatmentRequest) (*domain.Treatment, error) {
	return StaticTreatment(req), nil
}

// StaticTreatment is the generic plan used when no advisor answers.
// Every secondary candidate gets two short prevention steps.
func StaticTreatment(req *domain.TreatmentRequest) *domain.Treatment {
	return &domain.Treatment{
		RawText: "Solusi dasar untuk " + req.Primary.DiseaseName,
		Steps: []string{
			"Identifikasi gejala penyakit secara detail",
			"Pisahkan tanaman yang terinfeksi",
			"Lakukan treatment sesuai jenis penyakit",
			"Monitor perkembangan tanaman",
		},
		Medicines: []domain.Medicine{{
			Name:   "Konsultasi dengan ahli pertanian setempat",
			Type:   "Sesuai diagnosis",
			Dosage: "Mengikuti petunjuk penggunaan",
			Method: "Aplikasi sesuai rekomendasi",
		}},
		UsageGuides: []string{
			"Gunakan perlindungan diri saat aplikasi pestisida",
			"Aplikasikan di pagi atau sore hari",
			"Hindari penggunaan berlebihan",
			"Ikuti jadwal aplikasi yang disarankan",
		},
		Prevention: []string{
			"Gunakan varietas tahan penyakit",
			"Jaga sanitasi lahan",
			"Kelola air dengan baik",
			"Lakukan rotasi tanaman",
		},
		OtherDiseasePrevention: otherPrevention(req.Secondary),
		Source:                 domain.SourceFallback,
	}
}

func otherPrevention(secondary []domain.DiagnosisResult) []domain.OtherPrevention {
	out := make([]domain.OtherPrevention, 0, len(secondary))
	for _, r := range secondary {
		name := r.DiseaseName
		if name == "" {
			name = "Penyakit lain"
		}
		out = append(out, domain.OtherPrevention{
			DiseaseName: name,
			Steps: []string{
				"Gunakan bibit sehat dan bersertifikat",
				"Jaga sanitasi lahan dan sisa tanaman",
			},
		})
	}
	return out
}

// unparsedTreatment keeps the advisor's raw answer when it holds no
// usable JSON object.
func unparsedTreatment(raw string) *domain.Treatment {
	return &domain.Treatment{
		RawText: raw,
		Steps: []string{
			"Identifikasi dan isolasi tanaman yang terinfeksi",
			"Buang bagian tanaman yang terinfeksi parah",
			"Aplikasikan treatment sesuai rekomendasi",
		},
		Medicines: []domain.Medicine{{
			Name:   "Fungisida/Bakterisida yang sesuai",
			Type:   "Sesuai jenis penyakit",
			Dosage: "Ikuti petunjuk pada kemasan",
			Method: "Semprotkan secara merata",
		}},
		UsageGuides: []string{
			"Gunakan alat pelindung diri",
			"Aplikasikan pada pagi atau sore hari",
			"Hindari aplikasi saat hujan",
		},
		Prevention: []string{
			"Gunakan bibit berkualitas",
			"Jaga kebersihan lahan",
			"Rotasi tanaman",
		},
		OtherDiseasePrevention: []domain.OtherPrevention{},
		Source:                 domain.SourceAI,
	}
}
