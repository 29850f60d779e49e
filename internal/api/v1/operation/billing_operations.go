package operation

import "crystalgate/internal/api/v1/dto"

type CheckoutInput struct {
	Body dto.CheckoutRequestDTO `json:"body"`
}

type CheckoutOutput struct {
	Body dto.SessionURLDTO `json:"body"`
}

type PortalInput struct{}

type PortalOutput struct {
	Body dto.SessionURLDTO `json:"body"`
}
