package model

// VerifyRequest is the body posted to the backend's Stripe verification endpoint.
// Success is forwarded verbatim from the checkout redirect query string.
type VerifyRequest struct {
	Success       string `json:"success" validate:"required"`
	AppointmentID string `json:"appointmentId" validate:"required"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
