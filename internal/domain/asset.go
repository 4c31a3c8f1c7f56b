package domain

// Position represents an on-field position, including IDP slots.
type Position string

const (
	PositionQB  Position = "QB"
	PositionRB  Position = "RB"
	PositionWR  Position = "WR"
	PositionTE  Position = "TE"
	PositionK   Position = "K"
	PositionDEF Position = "DEF"
	PositionDL  Position = "DL"
	PositionLB  Position = "LB"
	PositionDB  Position = "DB"
)

// String returns the string representation of Position.
func (p Position) String() string {
	return string(p)
}

// IsValid checks if the position is a known value.
func (p Position) IsValid() bool {
	switch p {
	case PositionQB, PositionRB, PositionWR, PositionTE,
		PositionK, PositionDEF, PositionDL, PositionLB, PositionDB:
		return true
	}
	return false
}

// Format represents a valuation format. Dynasty and redraft values for the
// same asset are computed and cached independently.
type Format string

const (
	FormatDynasty Format = "dynasty"
	FormatRedraft Format = "redraft"
)

// String returns the string representation of Format.
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is a valid value.
func (f Format) IsValid() bool {
	return f == FormatDynasty || f == FormatRedraft
}

// Formats lists all valuation formats.
func Formats() []Format {
	return []Format{FormatDynasty, FormatRedraft}
}

// InjuryStatus represents a player's injury designation from the feed.
type InjuryStatus string

const (
	InjuryHealthy      InjuryStatus = "Healthy"
	InjuryProbable     InjuryStatus = "Probable"
	InjuryQuestionable InjuryStatus = "Questionable"
	InjuryDoubtful     InjuryStatus = "Doubtful"
	InjuryOut          InjuryStatus = "Out"
	InjuryIR           InjuryStatus = "IR"
	InjuryPUP          InjuryStatus = "PUP"
)

// String returns the string representation of InjuryStatus.
func (s InjuryStatus) String() string {
	return string(s)
}

// Sidelined reports whether the status rules the player out of play.
func (s InjuryStatus) Sidelined() bool {
	return s == InjuryOut || s == InjuryIR || s == InjuryPUP
}
