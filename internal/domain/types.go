package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type ChallengeID = uuid.UUID
type AttemptID = uuid.UUID
