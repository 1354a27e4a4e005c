package analyzer

import (
	"fmt"
	"strings"

	"github.com/bdougie/keyframes/internal/models"
)

// FramePrompt is sent with every sampled frame
const FramePrompt = `Describe what is happening in this video. Pay attention to details.

If you see a person: describe their appearance (gender, approximate age, clothing), facial expressions, and their immediate environment (objects, background).
If you see people: describe their actions.
If you see text: transcribe it exactly and describe its context (where it appears, font style, possible purpose).
If you see objects: mention their type, color and how they're being used.`

// SummaryPrompt asks for a summary of the combined frame analyses
func SummaryPrompt(analysis string) string {
	return fmt.Sprintf(`Generate a short, high-level summary (3-5 sentences) describing the main content of a video based on vision model analysis (e.g., YOLO, CLIP, Detectron). Focus on key objects, actions, and scene context.

At the end, summarize all the summaries to make a general summary.


Vision model analysis result:

%s
`, analysis)
}

// CombineAnalyses joins per-frame analyses in frame order, numbering them from 1
func CombineAnalyses(results []models.AnalysisResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("Frame %d analysis:\n%s\n", i+1, r.Content))
	}
	return strings.Join(blocks, "\n")
}
