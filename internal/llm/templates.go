package llm

import (
	"fmt"
	"strings"
)

// Template is the starting conversation for a project type. Prompts are
// sent to the model ahead of the user's request; UIPrompts are only shown.
type Template struct {
	Prompts   []string `json:"prompts"`
	UIPrompts []string `json:"uiPrompts"`
}

// Project type labels.
const (
	ProjectReact = "react"
	ProjectNode  = "node"
)

// BasePrompt sets the design bar for generated frontends.
const BasePrompt = "For all designs I ask you to make, have them be beautiful, not cookie cutter. Make webpages that are fully featured and worthy for production.\n\n" +
	"By default, this template supports JSX syntax with Tailwind CSS classes, React hooks, and Lucide React for icons. Do not install other packages for UI themes, icons, etc unless absolutely necessary or I request them.\n\n" +
	"Use icons from lucide-react for logos.\n\n" +
	"Use stock photos from unsplash where appropriate, only valid URLs you know exist. Do not download the images, only link to them in image tags."

// ReactBasePrompt describes the React starting point.
const ReactBasePrompt = `You are an expert React developer. Create a complete, production-ready React application with the following requirements:

1. Use modern React with hooks (useState, useEffect, etc.)
2. Use TypeScript for type safety
3. Implement responsive design with Tailwind CSS
4. Use functional components and custom hooks
5. Include proper error boundaries and loading states
6. Add form validation and user feedback
7. Use React Router for navigation if needed
8. Implement proper state management
9. Add accessibility features (ARIA labels, keyboard navigation)
10. Use modern JavaScript features (ES6+, async/await)
11. Include proper component structure and organization
12. Add proper TypeScript interfaces and types
13. Use Lucide React for icons
14. Implement proper error handling and user feedback

The application should be modern, accessible, responsive, and production-ready.`

// NodeBasePrompt describes the Node.js starting point.
const NodeBasePrompt = `You are an expert Node.js developer. Create a complete, production-ready Node.js application with the following requirements:

1. Use modern ES6+ JavaScript features
2. Include proper error handling and validation
3. Add comprehensive documentation
4. Use appropriate npm packages for functionality
5. Include proper project structure with organized files
6. Add environment variable support
7. Include proper logging
8. Add input validation and sanitization
9. Use async/await for asynchronous operations
10. Include proper HTTP status codes and responses

The application should be well-structured, maintainable, and ready for production deployment.`

// TemplateFor returns the template for a classification label.
// Both project types hand the model the React scaffold; they differ in the
// base prompt and in what the user is shown.
func TemplateFor(label string) (Template, error) {
	switch label {
	case ProjectReact:
		return Template{
			Prompts:   []string{BasePrompt, scaffoldPrompt(ReactBasePrompt)},
			UIPrompts: []string{ReactBasePrompt},
		}, nil
	case ProjectNode:
		return Template{
			Prompts:   []string{scaffoldPrompt(ReactBasePrompt)},
			UIPrompts: []string{NodeBasePrompt},
		}, nil
	default:
		return Template{}, fmt.Errorf("%w: %q", ErrInvalidProjectType, label)
	}
}

func scaffoldPrompt(scaffold string) string {
	return "Here is an artifact that contains all files of the project visible to you.\n" +
		"Consider the contents of ALL files in the project.\n\n" +
		scaffold +
		"\n\nHere is a list of files that exist on the file system but are not being shown to you:\n\n" +
		"  - .gitignore\n" +
		"  - package-lock.json\n"
}

// SystemPrompt instructs the model to answer with a single boltArtifact of
// file and shell actions.
func SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are Bolt, an expert AI assistant and exceptional senior software developer with vast knowledge across multiple programming languages, frameworks, and best practices.\n\n")
	sb.WriteString("<system_constraints>\n")
	sb.WriteString("  The project runs in a sandboxed directory with Node.js and npm available. Prefer Vite for web servers. ")
	sb.WriteString("The user installs dependencies with `npm install` and starts the project with `npm run dev`, so package.json must declare every dependency and a `dev` script.\n")
	sb.WriteString("</system_constraints>\n\n")
	sb.WriteString("<artifact_instructions>\n")
	sb.WriteString("  1. Reply with exactly one boltArtifact element with a `title` and an `id` attribute.\n")
	sb.WriteString("  2. Put every step inside it as a boltAction element with a `type` attribute:\n")
	sb.WriteString("     - file: write a file. Add a `filePath` attribute relative to the project root. The body is the COMPLETE file content, never a diff or placeholder.\n")
	sb.WriteString("     - shell: run a shell command.\n")
	sb.WriteString("  3. Order matters: create files before commands that use them, and write package.json first.\n")
	sb.WriteString("  4. On follow-up requests, emit only the files that change, each with its full new content.\n")
	sb.WriteString("  5. Do not run the dev server yourself and do not explain the artifact step by step.\n")
	sb.WriteString("</artifact_instructions>\n\n")
	sb.WriteString("Example:\n\n")
	sb.WriteString("<boltArtifact id=\"snake-game\" title=\"Snake Game in HTML and JavaScript\">\n")
	sb.WriteString("  <boltAction type=\"file\" filePath=\"package.json\">{\n  \"name\": \"snake\",\n  \"scripts\": { \"dev\": \"vite\" },\n  \"devDependencies\": { \"vite\": \"^5.4.2\" }\n}</boltAction>\n")
	sb.WriteString("  <boltAction type=\"file\" filePath=\"index.html\">...</boltAction>\n")
	sb.WriteString("  <boltAction type=\"shell\">npm install</boltAction>\n")
	sb.WriteString("</boltArtifact>\n")
	return sb.String()
}
