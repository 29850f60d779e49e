package dto

type CheckoutRequestDTO struct {
	Tier string `json:"tier" enum:"premium,pro,founders" doc:"Plan to subscribe to"`
}

type SessionURLDTO struct {
	URL string `json:"url"`
}
