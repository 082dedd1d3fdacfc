package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidStatus indica que la operación no es válida para el estado
	// actual de la autorización (ej: confirmar una autorización revocada).
	ErrInvalidStatus = errors.New("invalid status")

	// ErrExpired indica que la autorización ya expiró.
	ErrExpired = errors.New("expired")

	// ErrNoDatabase indica que no hay base de datos configurada.
	ErrNoDatabase = errors.New("no database configured")

	// ErrAgentRevoked indica que el agente fue revocado lógicamente.
	ErrAgentRevoked = errors.New("agent revoked")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidStatus verifica si el error es ErrInvalidStatus.
func IsInvalidStatus(err error) bool {
	return errors.Is(err, ErrInvalidStatus)
}

// IsExpired verifica si el error es ErrExpired.
func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}
