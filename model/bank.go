package model

// BankCode identifies a member bank on the switch network.
type BankCode string

const (
	BankCentral       BankCode = "010"
	BankMelli         BankCode = "011"
	BankMellat        BankCode = "012"
	BankRefah         BankCode = "013"
	BankMaskan        BankCode = "014"
	BankSepah         BankCode = "015"
	BankKeshavarzi    BankCode = "016"
	BankTejarat       BankCode = "018"
	BankSaderat       BankCode = "019"
	BankToseeTaavon   BankCode = "022"
	BankKarafarin     BankCode = "053"
	BankParsian       BankCode = "054"
	BankEghtesadNovin BankCode = "055"
	BankSaman         BankCode = "056"
	BankPasargad      BankCode = "057"
	BankSarmayeh      BankCode = "058"
	BankSina          BankCode = "059"
	BankShahr         BankCode = "061"
	BankAyandeh       BankCode = "062"
	BankAnsar         BankCode = "063"
	BankGardeshgari   BankCode = "064"
	BankResalat       BankCode = "070"

	// BankTest is accepted by the simulator only and never by validation.
	BankTest BankCode = "999"
)

var bankNames = map[BankCode]string{
	BankCentral:       "Central Bank",
	BankMelli:         "Bank Melli",
	BankMellat:        "Bank Mellat",
	BankRefah:         "Refah Bank",
	BankMaskan:        "Bank Maskan",
	BankSepah:         "Bank Sepah",
	BankKeshavarzi:    "Bank Keshavarzi",
	BankTejarat:       "Tejarat Bank",
	BankSaderat:       "Bank Saderat",
	BankToseeTaavon:   "Tosee Taavon Bank",
	BankKarafarin:     "Karafarin Bank",
	BankParsian:       "Parsian Bank",
	BankEghtesadNovin: "EN Bank",
	BankSaman:         "Saman Bank",
	BankPasargad:      "Pasargad Bank",
	BankSarmayeh:      "Sarmayeh Bank",
	BankSina:          "Sina Bank",
	BankShahr:         "Shahr Bank",
	BankAyandeh:       "Ayandeh Bank",
	BankAnsar:         "Ansar Bank",
	BankGardeshgari:   "Gardeshgari Bank",
	BankResalat:       "Resalat Bank",
}

// IsValidBankCode reports whether code belongs to a live member bank.
func IsValidBankCode(code string) bool {
	_, ok := bankNames[BankCode(code)]
	return ok
}

func BankName(code string) string {
	if name, ok := bankNames[BankCode(code)]; ok {
		return name
	}
	return "Unknown Bank"
}
