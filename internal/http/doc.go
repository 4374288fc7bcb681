// Package http provides HTTP handlers and middleware for the booking API.
//
// The router exposes the following endpoints. Every /bookings and /workers
// route requires an `Authorization: Bearer <jwt>` header whose HS256 token
// carries the user id in `sub` and an optional `role` of "admin".
//   - POST /bookings: creates a booking for the calling customer. Body:
//     {"worker_id","scheduled_date","scheduled_time","job_id?","notes?",
//     "estimated_duration_hours?"}. Responds 201 with the `bookingDTO`.
//   - GET /bookings: every booking, administrators only.
//   - GET /bookings/mine?as=customer|worker: the caller's bookings.
//   - GET /bookings/{id}, PUT /bookings/{id}, DELETE /bookings/{id}: read,
//     edit while requested ({"notes?","scheduled_date?","scheduled_time?"}),
//     and delete (204).
//   - PATCH /bookings/{id}/status: {"status","reason?"} lifecycle step.
//   - GET /bookings/{id}/history: audit trail, oldest first.
//   - GET /workers/{id}/busy-dates: dates with an active commitment.
//   - GET /healthz and GET /metrics: unauthenticated probes.
//
// Errors are returned as {"error_code","message","errors?"}.
package http
