package domain

import "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/domain/learner"

type EngineSnapshot = learner.EngineSnapshot
