package extract

import "testing"

func TestProductFacts(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		body        string
		want        ProductDetails
	}{
		{
			name:  "product name from recall title",
			title: "Class 1 Medicines Recall: Amoxicillin 250mg capsules (EL(25)A/29)",
			want: ProductDetails{
				ProductName: "Amoxicillin 250mg capsules",
			},
		},
		{
			name:        "batch and expiry from description",
			title:       "Class 2 Medicines Recall: Ramipril tablets",
			description: "Batches: ABC123, DEF456. Expiry: 06/2026",
			want: ProductDetails{
				ProductName:     "Ramipril tablets",
				BatchNumbers:    "ABC123, DEF456",
				ExpiryDates:     "06/2026",
				TherapeuticArea: "",
			},
		},
		{
			name: "lot number in body",
			body: "Affected Lot: XY789. Quarantine remaining stock.",
			want: ProductDetails{
				BatchNumbers: "XY789",
			},
		},
		{
			name:  "therapeutic area from keywords",
			title: "Drug Safety Update: insulin dosing errors",
			want: ProductDetails{
				TherapeuticArea: "diabetes",
			},
		},
		{
			name:  "first bucket wins",
			title: "Beta blocker interaction with insulin",
			want: ProductDetails{
				TherapeuticArea: "cardiovascular",
			},
		},
		{
			name:  "nothing extractable",
			title: "Annual report published",
			want:  ProductDetails{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProductFacts(tt.title, tt.description, tt.body)
			if got.ProductName != tt.want.ProductName {
				t.Errorf("ProductName = %q, want %q", got.ProductName, tt.want.ProductName)
			}
			if got.BatchNumbers != tt.want.BatchNumbers {
				t.Errorf("BatchNumbers = %q, want %q", got.BatchNumbers, tt.want.BatchNumbers)
			}
			if got.ExpiryDates != tt.want.ExpiryDates {
				t.Errorf("ExpiryDates = %q, want %q", got.ExpiryDates, tt.want.ExpiryDates)
			}
			if got.TherapeuticArea != tt.want.TherapeuticArea {
				t.Errorf("TherapeuticArea = %q, want %q", got.TherapeuticArea, tt.want.TherapeuticArea)
			}
		})
	}
}

func TestReference(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Class 1 Medicines Recall: Amoxicillin (EL(25)A/29)", "EL(25)A/29"},
		{"Field Safety Notice (MDR/2025/001)", "MDR/2025/001"},
		{"Urgent action required (NatPSA-2025-001)", "NatPSA-2025-001"},
		{"No reference here", ""},
		{"Bracketed text (see details)", ""},
	}

	for _, tt := range tests {
		if got := Reference(tt.title); got != tt.want {
			t.Errorf("Reference(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestSearchTerms(t *testing.T) {
	tests := []struct {
		name             string
		productName      string
		activeIngredient string
		batchNumbers     string
		want             string
	}{
		{
			name:        "product name cleaned of punctuation",
			productName: "Amoxicillin 250mg capsules",
			want:        "Amoxicillin 250mg capsules",
		},
		{
			name:             "ingredient added when distinct",
			productName:      "Zestril tablets",
			activeIngredient: "lisinopril",
			want:             "Zestril tablets OR lisinopril",
		},
		{
			name:         "short batch reference included",
			productName:  "Ramipril",
			batchNumbers: "ABC123",
			want:         "Ramipril OR batch:ABC123",
		},
		{
			name:         "long batch list omitted",
			productName:  "Ramipril",
			batchNumbers: "ABC123, DEF456, GHI789, JKL012",
			want:         "Ramipril",
		},
		{
			name: "fallback when nothing extracted",
			want: "Check prescription records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SearchTerms(tt.productName, tt.activeIngredient, tt.batchNumbers)
			if got != tt.want {
				t.Errorf("SearchTerms(%q, %q, %q) = %q, want %q",
					tt.productName, tt.activeIngredient, tt.batchNumbers, got, tt.want)
			}
		})
	}
}
