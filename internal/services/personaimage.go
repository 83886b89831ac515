package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/image/font"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/types"
	"github.com/calliopehq/persona-backend/internal/utils"
)

const placeholderSize = 512

// Placeholder backgrounds. Index is picked by a stable hash of persona
// attributes so identical personas always map to identical images.
var placeholderColors = []color.NRGBA{
	{R: 0x4C, G: 0x6E, B: 0xF5, A: 0xFF},
	{R: 0x0E, G: 0xA5, B: 0xE9, A: 0xFF},
	{R: 0x10, G: 0xB9, B: 0x81, A: 0xFF},
	{R: 0xF5, G: 0x9E, B: 0x0B, A: 0xFF},
	{R: 0xEF, G: 0x44, B: 0x44, A: 0xFF},
	{R: 0x8B, G: 0x5C, B: 0xF6, A: 0xFF},
	{R: 0xEC, G: 0x48, B: 0x99, A: 0xFF},
	{R: 0x64, G: 0x74, B: 0x8B, A: 0xFF},
}

type PersonaImageService interface {
	// Generate returns an image reference for the persona. With missing
	// credentials or a provider failure it falls back to a placeholder
	// keyed by a stable hash of the persona's attributes.
	Generate(ctx context.Context, workspaceID, userID, personaID uuid.UUID) (string, error)
}

type personaImageService struct {
	db          *gorm.DB
	log         *logger.Logger
	personaRepo repos.PersonaRepo

	openaiKey string
	mediaDir  string
	fontFace  font.Face
}

func NewPersonaImageService(db *gorm.DB, log *logger.Logger, personaRepo repos.PersonaRepo) PersonaImageService {
	serviceLog := log.With("service", "PersonaImageService")

	mediaDir := utils.GetEnv("MEDIA_DIR", "./media", log)
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		serviceLog.Warn("Could not create media dir", "dir", mediaDir, "error", err)
	}

	var face font.Face
	if fontPath := strings.TrimSpace(os.Getenv("PLACEHOLDER_FONT")); fontPath != "" {
		loaded, err := loadFontFace(fontPath, 220)
		if err != nil {
			serviceLog.Warn("Could not load placeholder font, rendering without initials", "font", fontPath, "error", err)
		} else {
			face = loaded
		}
	}

	return &personaImageService{
		db:          db,
		log:         serviceLog,
		personaRepo: personaRepo,
		openaiKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		mediaDir:    mediaDir,
		fontFace:    face,
	}
}

func (s *personaImageService) Generate(ctx context.Context, workspaceID, userID, personaID uuid.UUID) (string, error) {
	persona, err := s.personaRepo.GetByID(ctx, nil, workspaceID, personaID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return "", apierr.NotFound(fmt.Errorf("persona %s not found", personaID))
		}
		return "", err
	}

	if s.openaiKey != "" {
		url, genErr := s.generateHosted(ctx, persona)
		if genErr == nil {
			s.savePersonaImageURL(ctx, persona, url)
			return url, nil
		}
		s.log.Warn("Hosted image generation failed, using placeholder", "persona_id", persona.ID, "error", genErr)
	}

	url, err := s.placeholder(persona, workspaceID)
	if err != nil {
		return "", err
	}
	s.savePersonaImageURL(ctx, persona, url)
	return url, nil
}

func (s *personaImageService) generateHosted(ctx context.Context, persona *types.Persona) (string, error) {
	client := openai.NewClient(s.openaiKey)
	prompt := fmt.Sprintf("Professional portrait photo of %s, a %s consumer persona, neutral background", persona.Name, persona.Archetype)
	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
		N:              1,
	})
	if err != nil {
		return "", apierr.Provider(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", apierr.Provider(fmt.Errorf("image response had no url"))
	}
	return resp.Data[0].URL, nil
}

// placeholder draws a deterministic initials tile. The file name embeds
// the attribute hash, so regeneration for an unchanged persona is a
// no-op on disk.
func (s *personaImageService) placeholder(persona *types.Persona, workspaceID uuid.UUID) (string, error) {
	h := personaHash(persona, workspaceID)
	fileName := fmt.Sprintf("persona_placeholder_%x.png", h)
	fullPath := filepath.Join(s.mediaDir, fileName)
	ref := "/media/" + fileName

	if _, err := os.Stat(fullPath); err == nil {
		return ref, nil
	}

	bg := placeholderColors[h%uint64(len(placeholderColors))]

	dc := gg.NewContext(placeholderSize, placeholderSize)
	dc.SetColor(bg)
	dc.Clear()

	if s.fontFace != nil {
		dc.SetFontFace(s.fontFace)
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(initials(persona.Name), placeholderSize/2, placeholderSize/2, 0.5, 0.5)
	}

	if err := dc.SavePNG(fullPath); err != nil {
		return "", fmt.Errorf("save placeholder: %w", err)
	}
	return ref, nil
}

func (s *personaImageService) savePersonaImageURL(ctx context.Context, persona *types.Persona, url string) {
	persona.ImageURL = url
	if err := s.personaRepo.Update(ctx, nil, persona); err != nil {
		s.log.Warn("Failed to store persona image url", "persona_id", persona.ID, "error", err)
	}
}

func personaHash(persona *types.Persona, workspaceID uuid.UUID) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(workspaceID.String()))
	_, _ = h.Write([]byte("\x00"))
	_, _ = h.Write([]byte(persona.Name))
	_, _ = h.Write([]byte("\x00"))
	_, _ = h.Write([]byte(persona.Archetype))
	return h.Sum64()
}

func initials(name string) string {
	parts := strings.Fields(name)
	var b strings.Builder
	for i, p := range parts {
		if i == 2 {
			break
		}
		b.WriteString(strings.ToUpper(string([]rune(p)[0])))
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

func loadFontFace(path string, points float64) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(parsed, &truetype.Options{Size: points}), nil
}
