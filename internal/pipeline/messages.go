package pipeline

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/voicetask/internal/apierr"
	"github.com/fyrsmithlabs/voicetask/internal/capture"
	"github.com/fyrsmithlabs/voicetask/internal/extraction"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"github.com/fyrsmithlabs/voicetask/internal/transcription"
)

type phrase struct{ nl, en string }

func (p phrase) in(lang Language) string {
	if lang == English {
		return p.en
	}
	return p.nl
}

var (
	msgReady = phrase{
		"Klaar om nieuwe taken op te nemen",
		"Ready to record new tasks",
	}
	msgNoAudio = phrase{
		"Geen audio opgenomen om te verwerken",
		"No audio recorded to process",
	}
	msgMissingKey = phrase{
		"Geen OpenAI API key ingesteld. Sla eerst je instellingen op.",
		"No OpenAI API key configured. Save your settings first.",
	}
	msgBusy = phrase{
		"Er wordt al een opname verwerkt. Even geduld.",
		"A recording is already being processed. Please wait.",
	}
	msgAuth = phrase{
		"API key is ongeldig. Controleer je OpenAI API key.",
		"Invalid API key. Check your OpenAI API key.",
	}
	msgQuota = phrase{
		"API quota overschreden. Probeer later opnieuw.",
		"API quota exceeded. Try again later.",
	}
	msgTooLarge = phrase{
		"Audio bestand te groot. Maak een kortere opname.",
		"Audio file too large. Make a shorter recording.",
	}
	msgTooLong = phrase{
		"Opname is te lang. Maak een kortere opname.",
		"Recording is too long. Make a shorter recording.",
	}
	msgTimeout = phrase{
		"Timeout: Probeer een kortere opname of controleer je internetverbinding",
		"Timeout: Try a shorter recording or check your internet connection",
	}
	msgNoSpeech = phrase{
		"Geen spraak gedetecteerd in de opname. Probeer opnieuw en spreek duidelijk in de microfoon.",
		"No speech detected in the recording. Try again and speak clearly into the microphone.",
	}
	msgParse = phrase{
		"Kon geen taken uit het AI-antwoord halen. Probeer het opnieuw.",
		"Failed to parse tasks from AI response. Please try again.",
	}
	msgTaskDeleted  = phrase{"Taak verwijderd", "Task deleted"}
	msgTasksCleared = phrase{"Alle taken gewist", "All tasks cleared"}
)

// ErrorMessage renders err as a status line for the user.
func ErrorMessage(lang Language, err error) string {
	var apiErr *apierr.APIError
	switch {
	case errors.Is(err, ErrBusy):
		return msgBusy.in(lang)
	case errors.Is(err, ErrNoAudio):
		return msgNoAudio.in(lang)
	case errors.Is(err, ErrMissingAPIKey):
		return msgMissingKey.in(lang)
	case errors.Is(err, apierr.ErrAuth):
		return msgAuth.in(lang)
	case errors.Is(err, apierr.ErrQuota):
		return msgQuota.in(lang)
	case errors.Is(err, apierr.ErrPayloadTooLarge), errors.Is(err, capture.ErrTooLarge):
		return msgTooLarge.in(lang)
	case errors.Is(err, capture.ErrTooLong):
		return msgTooLong.in(lang)
	case errors.Is(err, apierr.ErrTimeout):
		return msgTimeout.in(lang)
	case errors.Is(err, transcription.ErrEmptyTranscription):
		return msgNoSpeech.in(lang)
	case errors.Is(err, extraction.ErrTaskParse):
		return msgParse.in(lang)
	case errors.As(err, &apiErr):
		detail := apiErr.Message
		if detail == "" {
			detail = fmt.Sprintf("%d", apiErr.StatusCode)
		}
		return phrase{"Fout: API Error: " + detail, "Error: API Error: " + detail}.in(lang)
	default:
		return phrase{"Fout: " + err.Error(), "Error: " + err.Error()}.in(lang)
	}
}

// ReadyMessage is shown after a successful run.
func ReadyMessage(lang Language) string {
	return msgReady.in(lang)
}

// SyncMessage renders the outcome of a workspace push.
func SyncMessage(lang Language, s *SyncOutcome) string {
	switch {
	case s == nil:
		return ""
	case s.Err != nil:
		return phrase{
			"Fout bij toevoegen aan Notion: " + s.Err.Error(),
			"Error adding to Notion: " + s.Err.Error(),
		}.in(lang)
	case s.Skipped:
		return phrase{
			"Notion synchronisatie overgeslagen: " + s.Warning,
			"Notion sync skipped: " + s.Warning,
		}.in(lang)
	default:
		return phrase{
			fmt.Sprintf("%d taken succesvol toegevoegd aan Notion!", s.Pages),
			fmt.Sprintf("Successfully added %d tasks to Notion!", s.Pages),
		}.in(lang)
	}
}

// DeletedMessage confirms a deletion in the language of the removed task.
func DeletedMessage(r tasks.Record) string {
	if r.Dutch() {
		return msgTaskDeleted.nl
	}
	return msgTaskDeleted.en
}

// ClearedMessage confirms that the task list was emptied.
func ClearedMessage(lang Language) string {
	return msgTasksCleared.in(lang)
}
